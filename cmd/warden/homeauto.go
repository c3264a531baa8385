package main

import (
	"context"
	"fmt"

	"github.com/homelab/warden/pkg/homeassistant"
)

// homeAutomationAdapter bridges *homeassistant.Client's structured AddonInfo
// onto llmagent.HomeAutomation's AddonInfo(ctx, slug) (string, error), the
// same exact-type-identity gap pipeline/adapters.go's metricsAdapter bridges
// for the metrics client: the LLM tool executor wants a ready-to-render
// string for the model's tool_result block, not a typed struct.
type homeAutomationAdapter struct {
	client *homeassistant.Client
}

func newHomeAutomationAdapter(client *homeassistant.Client) *homeAutomationAdapter {
	return &homeAutomationAdapter{client: client}
}

func (a *homeAutomationAdapter) RestartAddon(ctx context.Context, slug string) error {
	return a.client.RestartAddon(ctx, slug)
}

func (a *homeAutomationAdapter) ReloadAutomations(ctx context.Context) error {
	return a.client.ReloadAutomations(ctx)
}

func (a *homeAutomationAdapter) AddonInfo(ctx context.Context, slug string) (string, error) {
	info, err := a.client.AddonInfo(ctx, slug)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%s): state=%s, version=%s, update_available=%t",
		info.Name, info.Slug, info.State, info.Version, info.UpdateAvailable), nil
}
