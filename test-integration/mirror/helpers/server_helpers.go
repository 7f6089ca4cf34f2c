package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/stacklok/plugin-mirror/internal/app"
	"github.com/stacklok/plugin-mirror/internal/config"
)

// ServerTestHelper manages the mirror lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *app.MirrorApp
}

// NewServerTestHelper creates a new server test helper listening on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) (*ServerTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to find a free port: %w", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, err
	}

	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// StartServer builds and starts the mirror programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath), config.WithEnv(viper.New()))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mirror, err := app.NewMirrorApp(s.ctx,
		app.WithConfig(cfg),
		app.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = mirror

	// Start the server in a goroutine (non-blocking)
	go func() {
		if err := mirror.Start(); err != nil {
			// The test will fail when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the mirror
func (s *ServerTestHelper) StopServer() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Stop(5 * time.Second)
	s.app = nil
	return err
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// PluginInformation makes a plugin_information request
func (s *ServerTestHelper) PluginInformation(slug string) (*http.Response, error) {
	q := url.Values{"action": {"plugin_information"}, "request[slug]": {slug}}
	return s.httpClient.Get(s.baseURL + "/plugins/info/1.2/?" + q.Encode())
}

// QueryPlugins makes a query_plugins request
func (s *ServerTestHelper) QueryPlugins(page, perPage int, browse string) (*http.Response, error) {
	q := url.Values{
		"action":            {"query_plugins"},
		"request[page]":     {fmt.Sprint(page)},
		"request[per_page]": {fmt.Sprint(perPage)},
	}
	if browse != "" {
		q.Set("request[browse]", browse)
	}
	return s.httpClient.Get(s.baseURL + "/plugins/info/1.2/?" + q.Encode())
}

// Info makes a raw request to the info endpoint
func (s *ServerTestHelper) Info(rawQuery string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/plugins/info/1.2/?" + rawQuery)
}

// TriggerUpdate makes a POST request to /plugins/update
func (s *ServerTestHelper) TriggerUpdate(force bool) (*http.Response, error) {
	target := s.baseURL + "/plugins/update"
	if force {
		target += "?force=true"
	}
	return s.httpClient.Post(target, "application/json", nil)
}

// UpdateStatus makes a GET request to /plugins/update-status
func (s *ServerTestHelper) UpdateStatus() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/plugins/update-status")
}

// DecodeJSON reads and closes the response body into v
func DecodeJSON(resp *http.Response, v any) {
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(json.Unmarshal(body, v)).To(gomega.Succeed(), "body: %s", string(body))
}
