package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the assembled Config against its struct tags and a few
// cross-field invariants the spec calls out explicitly (§6, §9).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(fe.Namespace(), fmt.Errorf("%w: failed %q", ErrInvalidValue, fe.Tag()))
		}
		return NewValidationError("config", err)
	}

	for name, host := range cfg.Hosts {
		if host.IsLocal() || host.Address == "" {
			continue
		}
		if err := validate.Struct(host); err != nil {
			return NewValidationError("hosts."+name, fmt.Errorf("%w: %v", ErrMissingRequiredField, err))
		}
	}

	if cfg.Remediation.MaxAttemptsPerAlert < 1 {
		return NewValidationError("remediation.max_attempts_per_alert", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Remediation.SelfRestartMaxRestarts < 0 {
		return NewValidationError("remediation.self_restart_max_restarts", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if cfg.Queue.Capacity < 1 {
		return NewValidationError("queue.capacity", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.HomeAutomation.Token == "" && cfg.HomeAutomation.BaseURL != "" {
		// Base URL without a token is almost certainly a misconfiguration,
		// but per §9 Open Question ii a missing token just disables the
		// home-automation tool surface rather than failing startup.
		return nil
	}

	return nil
}
