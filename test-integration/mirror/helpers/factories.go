package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	"github.com/stacklok/plugin-mirror/internal/registry"
)

// BaseTime is the last update time of the newest default test plugin
var BaseTime = time.Date(2024, 3, 5, 16, 15, 0, 0, time.UTC)

// CreateTestPlugins returns the default directory contents, newest first
func CreateTestPlugins() []*registry.Plugin {
	return []*registry.Plugin{
		registry.NewTestPlugin("akismet",
			registry.WithVersion("5.3"),
			registry.WithLastUpdatedTime(BaseTime)),
		registry.NewTestPlugin("jetpack",
			registry.WithVersion("13.1"),
			registry.WithLastUpdatedTime(BaseTime.Add(-time.Hour))),
		registry.NewTestPlugin("woocommerce",
			registry.WithVersion("8.6.1"),
			registry.WithLastUpdatedTime(BaseTime.Add(-2*time.Hour)),
			registry.WithTags("ecommerce")),
	}
}

// MirrorConfig describes the configuration file written for a test
type MirrorConfig struct {
	DirectoryURL string
	DataDir      string
	WebhookURL   string
	PageSize     int
	SnapshotFile string
}

// WriteConfigYAML writes a configuration file into dir and returns its path.
// Scheduled runs are disabled so each test triggers runs explicitly.
func WriteConfigYAML(dir string, cfg MirrorConfig) string {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = 2
	}

	content := fmt.Sprintf(`remote:
  baseURL: %s
  timeout: 5s
  pageSize: %d
sync:
  interval: 1h
  onStartup: false
dataDir: %s
`, cfg.DirectoryURL, pageSize, cfg.DataDir)

	if cfg.SnapshotFile != "" {
		content += fmt.Sprintf("cache:\n  snapshotFile: %s\n", cfg.SnapshotFile)
	}
	if cfg.WebhookURL != "" {
		content += fmt.Sprintf(`notifications:
  timeout: 2s
  webhooks:
    - name: recorder
      url: %s
`, cfg.WebhookURL)
	}

	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return path
}
