// Package config provides configuration loading and management for the plugin mirror.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/plugin-mirror/internal/telemetry"
)

// EnvPrefix is the prefix of every environment override, e.g. PLUGIN_MIRROR_DATABASE_HOST
const EnvPrefix = "PLUGIN_MIRROR"

// PasswordEnvVar holds the database password when no password file is configured
const PasswordEnvVar = EnvPrefix + "_DATABASE_PASSWORD"

const (
	// DefaultBaseURL is the public plugin directory
	DefaultBaseURL = "https://api.wordpress.org"

	// DefaultPageSize is the number of records requested per feed page
	DefaultPageSize = 250

	// MaxPageSize is the largest page the directory serves
	MaxPageSize = 250

	// DefaultRemoteTimeout bounds a single feed request
	DefaultRemoteTimeout = 30 * time.Second

	// DefaultSyncInterval is the time between scheduled sync runs
	DefaultSyncInterval = time.Hour

	// DefaultDataDir holds the side marker and the cache snapshot
	DefaultDataDir = "./data"

	// DefaultPubSubTopic is the Pub/Sub topic change events are published to
	DefaultPubSubTopic = "plugin_updates"

	// DefaultPubNubUserID identifies the mirror to PubNub
	DefaultPubNubUserID = "wp-plugin-notifier"

	// DefaultPubNubChannel is the PubNub channel change events are published to
	DefaultPubNubChannel = "wp-plugin-notifications"

	// DefaultNotifyTimeout bounds the delivery to a single sink
	DefaultNotifyTimeout = 5 * time.Second

	defaultDatabasePort = 5432

	// devModeLimit caps pages and records in dev mode unless set explicitly
	devModeLimit = 1
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
	env  *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithEnv sets the viper instance environment overrides are read from.
// Without it LoadConfig reads PLUGIN_MIRROR_* variables from the process environment.
func WithEnv(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		if v == nil {
			return fmt.Errorf("viper instance is required")
		}
		cfg.env = v
		return nil
	}
}

// NewEnv returns a viper instance bound to the PLUGIN_MIRROR_ environment
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Config represents the root configuration structure
type Config struct {
	Remote        *RemoteConfig        `yaml:"remote,omitempty"`
	Sync          *SyncConfig          `yaml:"sync,omitempty"`
	Database      *DatabaseConfig      `yaml:"database,omitempty"`
	Cache         *CacheConfig         `yaml:"cache,omitempty"`
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`
	Telemetry     *telemetry.Config    `yaml:"telemetry,omitempty"`

	// DevMode adds error details to API responses and caps sync runs
	DevMode bool `yaml:"devMode,omitempty"`

	// DataDir holds the side marker file. Defaults to ./data
	DataDir string `yaml:"dataDir,omitempty"`
}

// RemoteConfig defines the plugin directory being mirrored
type RemoteConfig struct {
	// BaseURL is the directory origin, without the /plugins/info/1.2/ path
	BaseURL string `yaml:"baseURL,omitempty"`

	// HostHeader overrides the Host header sent upstream. Defaults to the BaseURL host
	HostHeader string `yaml:"hostHeader,omitempty"`

	// Timeout bounds a single request (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// PageSize is the request[per_page] value used by the sync walk
	PageSize int `yaml:"pageSize,omitempty"`
}

// SyncConfig defines synchronization settings
type SyncConfig struct {
	// Interval between scheduled runs (e.g., "1h"). Defaults to one hour
	Interval string `yaml:"interval,omitempty"`

	// Jitter randomizes each interval by up to this amount in either direction
	Jitter string `yaml:"jitter,omitempty"`

	// OnStartup triggers a run as soon as the server starts. Defaults to true
	OnStartup *bool `yaml:"onStartup,omitempty"`

	// MaxPages ends a walk after this many pages. Zero means unlimited
	MaxPages int `yaml:"maxPages,omitempty"`

	// MaxRecords ends a walk after this many stored records. Zero means unlimited
	MaxRecords int `yaml:"maxRecords,omitempty"`

	// Filter selects which plugins are mirrored
	Filter *FilterConfig `yaml:"filter,omitempty"`
}

// FilterConfig defines filtering rules for mirrored plugins
type FilterConfig struct {
	Names *NameFilterConfig `yaml:"names,omitempty"`
	Tags  *TagFilterConfig  `yaml:"tags,omitempty"`
}

// NameFilterConfig defines slug glob filtering
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// TagFilterConfig defines tag-based filtering
type TagFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of idle connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// CacheConfig defines the fast tier settings
type CacheConfig struct {
	// SnapshotFile is loaded into the fast tier at startup and written at shutdown.
	// Empty disables snapshots
	SnapshotFile string `yaml:"snapshotFile,omitempty"`
}

// NotificationsConfig defines the change event sinks
type NotificationsConfig struct {
	PubSub   *PubSubConfig   `yaml:"pubsub,omitempty"`
	PubNub   *PubNubConfig   `yaml:"pubnub,omitempty"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`

	// Timeout bounds the delivery to a single sink (e.g., "5s")
	Timeout string `yaml:"timeout,omitempty"`
}

// PubSubConfig defines the Google Cloud Pub/Sub sink
type PubSubConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"projectID,omitempty"`
	Topic     string `yaml:"topic,omitempty"`
}

// PubNubConfig defines the PubNub sink
type PubNubConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PublishKey   string `yaml:"publishKey,omitempty"`
	SubscribeKey string `yaml:"subscribeKey,omitempty"`
	UserID       string `yaml:"userID,omitempty"`
	Channel      string `yaml:"channel,omitempty"`
}

// WebhookConfig defines an HTTP endpoint that receives change events
type WebhookConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from PLUGIN_MIRROR_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", PasswordEnvVar,
	)
}

// GetSSLMode returns the SSL mode, using "require" if not specified
func (d *DatabaseConfig) GetSSLMode() string {
	if d.SSLMode == "" {
		return "require"
	}
	return d.SSLMode
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": {d.GetSSLMode()}}.Encode(),
	}
	return u.String(), nil
}

// LoadConfig parses the YAML file, if any, applies environment overrides,
// fills defaults and validates the result.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}
	if loaderCfg.env == nil {
		loaderCfg.env = NewEnv()
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	config.applyEnv(loaderCfg.env)
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnv overrides file values with the PLUGIN_MIRROR_* variables that are set
func (c *Config) applyEnv(v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setBool("dev_mode", &c.DevMode)
	setString("data_dir", &c.DataDir)

	c.Remote = orNew(c.Remote)
	setString("remote.base_url", &c.Remote.BaseURL)
	setString("remote.host_header", &c.Remote.HostHeader)
	setString("remote.timeout", &c.Remote.Timeout)
	setInt("remote.page_size", &c.Remote.PageSize)

	c.Sync = orNew(c.Sync)
	setString("sync.interval", &c.Sync.Interval)
	setString("sync.jitter", &c.Sync.Jitter)
	setInt("sync.max_pages", &c.Sync.MaxPages)
	setInt("sync.max_records", &c.Sync.MaxRecords)
	if v.IsSet("sync.on_startup") {
		onStartup := v.GetBool("sync.on_startup")
		c.Sync.OnStartup = &onStartup
	}

	if v.IsSet("database.host") && c.Database == nil {
		c.Database = &DatabaseConfig{}
	}
	if c.Database != nil {
		setString("database.host", &c.Database.Host)
		setInt("database.port", &c.Database.Port)
		setString("database.user", &c.Database.User)
		setString("database.database", &c.Database.Database)
		setString("database.ssl_mode", &c.Database.SSLMode)
		setString("database.password_file", &c.Database.PasswordFile)
	}

	c.Cache = orNew(c.Cache)
	setString("cache.snapshot_file", &c.Cache.SnapshotFile)

	c.Notifications = orNew(c.Notifications)
	c.Notifications.PubSub = orNew(c.Notifications.PubSub)
	setBool("notifications.pubsub.enabled", &c.Notifications.PubSub.Enabled)
	setString("notifications.pubsub.project_id", &c.Notifications.PubSub.ProjectID)
	setString("notifications.pubsub.topic", &c.Notifications.PubSub.Topic)
	c.Notifications.PubNub = orNew(c.Notifications.PubNub)
	setBool("notifications.pubnub.enabled", &c.Notifications.PubNub.Enabled)
	setString("notifications.pubnub.publish_key", &c.Notifications.PubNub.PublishKey)
	setString("notifications.pubnub.subscribe_key", &c.Notifications.PubNub.SubscribeKey)
	setString("notifications.pubnub.channel", &c.Notifications.PubNub.Channel)
}

func orNew[T any](p *T) *T {
	if p == nil {
		return new(T)
	}
	return p
}

// applyDefaults fills every unset value that has a default
func (c *Config) applyDefaults() {
	c.Remote = orNew(c.Remote)
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = DefaultBaseURL
	}
	if c.Remote.PageSize == 0 {
		c.Remote.PageSize = DefaultPageSize
	}

	c.Sync = orNew(c.Sync)
	if c.DevMode {
		if c.Sync.MaxPages == 0 {
			c.Sync.MaxPages = devModeLimit
		}
		if c.Sync.MaxRecords == 0 {
			c.Sync.MaxRecords = devModeLimit
		}
	}

	if c.Database != nil && c.Database.Port == 0 {
		c.Database.Port = defaultDatabasePort
	}

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}

	c.Cache = orNew(c.Cache)

	c.Notifications = orNew(c.Notifications)
	c.Notifications.PubSub = orNew(c.Notifications.PubSub)
	if c.Notifications.PubSub.Topic == "" {
		c.Notifications.PubSub.Topic = DefaultPubSubTopic
	}
	c.Notifications.PubNub = orNew(c.Notifications.PubNub)
	if c.Notifications.PubNub.UserID == "" {
		c.Notifications.PubNub.UserID = DefaultPubNubUserID
	}
	if c.Notifications.PubNub.Channel == "" {
		c.Notifications.PubNub.Channel = DefaultPubNubChannel
	}

	if c.Telemetry == nil {
		c.Telemetry = &telemetry.Config{}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Remote.validate(); err != nil {
		return err
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}
	if c.Database != nil {
		if err := c.Database.validate(); err != nil {
			return err
		}
	}
	if err := c.Notifications.validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (r *RemoteConfig) validate() error {
	u, err := url.Parse(r.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote.baseURL must be an absolute URL, got %q", r.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.baseURL must use http or https, got %q", u.Scheme)
	}
	if r.PageSize < 1 || r.PageSize > MaxPageSize {
		return fmt.Errorf("remote.pageSize must be between 1 and %d, got %d", MaxPageSize, r.PageSize)
	}
	if err := validateDuration("remote.timeout", r.Timeout); err != nil {
		return err
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if err := validateDuration("sync.interval", s.Interval); err != nil {
		return err
	}
	if err := validateDuration("sync.jitter", s.Jitter); err != nil {
		return err
	}
	if s.GetJitter() >= s.GetInterval() {
		return fmt.Errorf("sync.jitter must be shorter than sync.interval")
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("sync.maxPages cannot be negative")
	}
	if s.MaxRecords < 0 {
		return fmt.Errorf("sync.maxRecords cannot be negative")
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	return validateDuration("database.connMaxLifetime", d.ConnMaxLifetime)
}

func (n *NotificationsConfig) validate() error {
	if err := validateDuration("notifications.timeout", n.Timeout); err != nil {
		return err
	}
	if n.PubSub.Enabled && n.PubSub.ProjectID == "" {
		return fmt.Errorf("notifications.pubsub.projectID is required when pubsub is enabled")
	}
	if n.PubNub.Enabled && (n.PubNub.PublishKey == "" || n.PubNub.SubscribeKey == "") {
		return fmt.Errorf("notifications.pubnub.publishKey and subscribeKey are required when pubnub is enabled")
	}

	names := make(map[string]bool)
	for i, hook := range n.Webhooks {
		if hook.Name == "" {
			return fmt.Errorf("notifications.webhooks[%d]: name is required", i)
		}
		if names[hook.Name] {
			return fmt.Errorf("notifications.webhooks[%d]: duplicate webhook name '%s'", i, hook.Name)
		}
		names[hook.Name] = true

		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notifications.webhooks[%d] (%s): url must be an absolute http(s) URL", i, hook.Name)
		}
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s cannot be negative", field)
	}
	return nil
}

// parseDuration returns the parsed value or def when empty or invalid
func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// GetTimeout returns the per-request timeout
func (r *RemoteConfig) GetTimeout() time.Duration {
	return parseDuration(r.Timeout, DefaultRemoteTimeout)
}

// GetInterval returns the time between scheduled runs
func (s *SyncConfig) GetInterval() time.Duration {
	return parseDuration(s.Interval, DefaultSyncInterval)
}

// GetJitter returns the maximum interval randomization
func (s *SyncConfig) GetJitter() time.Duration {
	return parseDuration(s.Jitter, 0)
}

// GetOnStartup reports whether a run is triggered at startup
func (s *SyncConfig) GetOnStartup() bool {
	if s.OnStartup == nil {
		return true
	}
	return *s.OnStartup
}

// GetConnMaxLifetime returns the maximum connection lifetime, or zero for the pool default
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDuration(d.ConnMaxLifetime, 0)
}

// GetTimeout returns the per-sink delivery timeout
func (n *NotificationsConfig) GetTimeout() time.Duration {
	return parseDuration(n.Timeout, DefaultNotifyTimeout)
}

// MarkerPath returns the path of the side marker file
func (c *Config) MarkerPath() string {
	return filepath.Join(c.DataDir, "last_update.txt")
}

// StorePath returns the path of the local durable tier, used when no
// database is configured
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "store.db")
}

// UsesDatabase reports whether the durable tier is PostgreSQL
func (c *Config) UsesDatabase() bool {
	return c.Database != nil
}
