// Package config loads and validates the engine's runtime configuration
// from environment variables. cmd/warden loads a .env file with godotenv
// before calling Load so local development can avoid exporting variables
// by hand.
package config
