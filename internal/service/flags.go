package service

import (
	"deploy-orchestrator-backend/internal/config"
)

// Feature flags consulted by the orchestrator. Flags name features that
// are on by default; configuration disables them per app or platform-wide.
const (
	// FlagDeploy gates deployments entirely. Disabled apps get
	// ErrDeployDisabled before an attempt is even created.
	FlagDeploy = "deploy"
	// FlagPreviewCI controls the CI backup pass after a preview fast-path
	// deploy. Disabling it short-circuits CI for preview.
	FlagPreviewCI = "preview_ci"
)

// FeatureFlagProvider answers whether a flag is enabled for an app.
type FeatureFlagProvider interface {
	Enabled(flag, subdomain string) bool
}

// ConfigFlagProvider reads flag state from the loaded configuration. The
// disabled list supports "*" to disable a flag platform-wide.
type ConfigFlagProvider struct {
	disabled map[string][]string
}

func NewConfigFlagProvider(cfg *config.Config) *ConfigFlagProvider {
	return &ConfigFlagProvider{disabled: cfg.DisabledFlags}
}

func (p *ConfigFlagProvider) Enabled(flag, subdomain string) bool {
	for _, s := range p.disabled[flag] {
		if s == "*" || s == subdomain {
			return false
		}
	}
	return true
}
