package coordinator

import (
	"github.com/stacklok/plugin-mirror/internal/config"
)

// FromConfig returns the options matching the sync configuration
func FromConfig(cfg *config.SyncConfig) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithInterval(cfg.GetInterval()),
		WithJitter(cfg.GetJitter()),
		WithRunOnStartup(cfg.GetOnStartup()),
	}
}
