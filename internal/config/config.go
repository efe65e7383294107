// Package config handles loading and validation of TubeGate configuration
// from YAML files and environment variables. Environment variables always
// override file-based values. Env var names follow the struct path with a
// TUBEGATE_ prefix:
//
//	server.address → TUBEGATE_SERVER_ADDRESS
//	rate_limit.ip.per_minute → TUBEGATE_RATE_LIMIT_IP_PER_MINUTE
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is the default path for the YAML configuration file.
// Override via TUBEGATE_CONFIG_FILE environment variable.
const defaultConfigFile = "/etc/tubegate/config.yaml"

// ---------------------------------------------------------------------------
// Enum types — typed string constants replace scattered hard-coded values.
// All canonical forms are lowercase; Load() normalizes before validation.
// ---------------------------------------------------------------------------

// LogLevel controls the minimum severity for structured log output.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// LogFormat selects the structured log encoding.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

func (f LogFormat) Valid() bool {
	switch f {
	case LogFormatJSON, LogFormatText:
		return true
	}
	return false
}

// CacheBackend selects the persistent cache tier implementation.
type CacheBackend string

const (
	CacheBackendSQLite CacheBackend = "sqlite"
	CacheBackendRedis  CacheBackend = "redis"
)

func (b CacheBackend) Valid() bool {
	switch b {
	case CacheBackendSQLite, CacheBackendRedis:
		return true
	}
	return false
}

// SigningAlgorithm selects the HMAC hash for request signatures.
type SigningAlgorithm string

const (
	SigningSHA256 SigningAlgorithm = "sha256"
	SigningSHA512 SigningAlgorithm = "sha512"
)

func (a SigningAlgorithm) Valid() bool {
	switch a {
	case SigningSHA256, SigningSHA512:
		return true
	}
	return false
}

// TLSVersion selects the minimum TLS protocol version.
type TLSVersion string

const (
	TLSVersion12 TLSVersion = "1.2"
	TLSVersion13 TLSVersion = "1.3"
)

func (v TLSVersion) Valid() bool {
	switch v {
	case TLSVersion12, TLSVersion13:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Config structs
// ---------------------------------------------------------------------------

// Config is the top-level TubeGate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"     envPrefix:"SERVER_"`
	Admin     AdminConfig     `yaml:"admin"      envPrefix:"ADMIN_"`
	YouTube   YouTubeConfig   `yaml:"youtube"    envPrefix:"YOUTUBE_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Cache     CacheConfig     `yaml:"cache"      envPrefix:"CACHE_"`
	CORS      CORSConfig      `yaml:"cors"       envPrefix:"CORS_"`
	Signing   SigningConfig   `yaml:"signing"    envPrefix:"SIGNING_"`
	Sanitize  SanitizeConfig  `yaml:"sanitize"   envPrefix:"SANITIZE_"`
	SecLog    SecLogConfig    `yaml:"seclog"     envPrefix:"SECLOG_"`
	OAuth     OAuthConfig     `yaml:"oauth"      envPrefix:"OAUTH_"`
	Auth      AuthConfig      `yaml:"auth"       envPrefix:"AUTH_"`
	Registry  RegistryConfig  `yaml:"registry"   envPrefix:"REGISTRY_"`
	Events    EventsConfig    `yaml:"events"     envPrefix:"EVENTS_"`
	Logging   LoggingConfig   `yaml:"logging"    envPrefix:"LOGGING_"`
	Tracing   TracingConfig   `yaml:"tracing"    envPrefix:"TRACING_"`
}

// ServerConfig holds the main MCP server settings.
type ServerConfig struct {
	Address        string          `yaml:"address"         env:"ADDRESS"`
	ReadTimeout    string          `yaml:"read_timeout"    env:"READ_TIMEOUT"`
	WriteTimeout   string          `yaml:"write_timeout"   env:"WRITE_TIMEOUT"`
	IdleTimeout    string          `yaml:"idle_timeout"    env:"IDLE_TIMEOUT"`
	DrainTimeout   string          `yaml:"drain_timeout"   env:"DRAIN_TIMEOUT"`
	RequestTimeout string          `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	TLS            ServerTLSConfig `yaml:"tls"             envPrefix:"TLS_"`
}

// ServerTLSConfig holds optional TLS termination settings.
type ServerTLSConfig struct {
	Enabled      bool       `yaml:"enabled"       env:"ENABLED"`
	CertFile     string     `yaml:"cert_file"     env:"CERT_FILE"`
	KeyFile      string     `yaml:"key_file"      env:"KEY_FILE"`
	HTTP3Enabled bool       `yaml:"http3_enabled" env:"HTTP3_ENABLED"`
	MinVersion   TLSVersion `yaml:"min_version"   env:"MIN_VERSION"`
}

// AdminConfig holds the admin/observability server settings.
type AdminConfig struct {
	Address      string `yaml:"address"       env:"ADDRESS"`
	ReadTimeout  string `yaml:"read_timeout"  env:"READ_TIMEOUT"`
	WriteTimeout string `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout  string `yaml:"idle_timeout"  env:"IDLE_TIMEOUT"`
}

// YouTubeConfig holds the YouTube Data API collaborator settings.
type YouTubeConfig struct {
	APIKey     RedactedString `yaml:"api_key"     env:"API_KEY"`
	RegionCode string         `yaml:"region_code" env:"REGION_CODE"`
	Timeout    string         `yaml:"timeout"     env:"TIMEOUT"`

	// Retry policy for transient API failures (timeouts, 5xx, quota races).
	MaxAttempts int    `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BackoffBase string `yaml:"backoff_base" env:"BACKOFF_BASE"`
	BackoffMax  string `yaml:"backoff_max"  env:"BACKOFF_MAX"`
}

// WindowLimits holds per-window request ceilings for one identity scope.
// A zero limit disables that window.
type WindowLimits struct {
	PerMinute int `yaml:"per_minute" env:"PER_MINUTE"`
	PerHour   int `yaml:"per_hour"   env:"PER_HOUR"`
	PerDay    int `yaml:"per_day"    env:"PER_DAY"`
}

// RateLimitConfig holds sliding-window rate limit settings per identity
// scope. Identity resolution charges exactly one scope per call, in priority
// order user > api_key > ip.
type RateLimitConfig struct {
	Enabled bool         `yaml:"enabled" env:"ENABLED"`
	User    WindowLimits `yaml:"user"    envPrefix:"USER_"`
	APIKey  WindowLimits `yaml:"api_key" envPrefix:"API_KEY_"`
	IP      WindowLimits `yaml:"ip"      envPrefix:"IP_"`

	// MaxIdentities caps tracked identity entries to bound memory under
	// identity-flooding. 0 uses the default (10000).
	MaxIdentities int `yaml:"max_identities" env:"MAX_IDENTITIES"`

	// CleanupInterval controls how often fully-idle identity entries are
	// swept. Empty uses the default (1h).
	CleanupInterval string `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// CacheTTLConfig holds per-operation-class TTLs. Volatile data (search)
// gets short TTLs, stable metadata long ones.
type CacheTTLConfig struct {
	Default    string `yaml:"default"    env:"DEFAULT"`
	Search     string `yaml:"search"     env:"SEARCH"`
	Video      string `yaml:"video"      env:"VIDEO"`
	Channel    string `yaml:"channel"    env:"CHANNEL"`
	Comments   string `yaml:"comments"   env:"COMMENTS"`
	Transcript string `yaml:"transcript" env:"TRANSCRIPT"`
	Playlist   string `yaml:"playlist"   env:"PLAYLIST"`
}

// CacheConfig holds two-tier cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// MemoryMaxCost is the memory tier budget in bytes. 0 uses the
	// default (64 MiB).
	MemoryMaxCost int64 `yaml:"memory_max_cost" env:"MEMORY_MAX_COST"`

	Backend CacheBackend     `yaml:"backend" env:"BACKEND"`
	Path    string           `yaml:"path"    env:"DB_PATH"` // SQLite file path
	Redis   RedisConfig      `yaml:"redis"   envPrefix:"REDIS_"`
	TTL     CacheTTLConfig   `yaml:"ttl"     envPrefix:"TTL_"`
	Encrypt CacheCryptConfig `yaml:"encrypt" envPrefix:"ENCRYPT_"`
}

// CacheCryptConfig controls encryption-at-rest for the persistent tier.
type CacheCryptConfig struct {
	Enabled bool           `yaml:"enabled" env:"ENABLED"`
	Secret  RedactedString `yaml:"secret"  env:"SECRET"`
}

// RedisConfig holds connection settings for the optional Redis persistent
// cache tier.
type RedisConfig struct {
	Endpoints []string       `yaml:"endpoints" env:"ENDPOINTS" envSeparator:","`
	Username  string         `yaml:"username"  env:"USERNAME"`
	Password  RedactedString `yaml:"password"  env:"PASSWORD"`
	DB        int            `yaml:"db"        env:"DB"`
	PoolSize  int            `yaml:"pool_size" env:"POOL_SIZE"`
	TLS       bool           `yaml:"tls"       env:"TLS"`
}

// CORSConfig holds cross-origin request policy.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"   env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedMethods   []string `yaml:"allowed_methods"   env:"ALLOWED_METHODS" envSeparator:","`
	AllowedHeaders   []string `yaml:"allowed_headers"   env:"ALLOWED_HEADERS" envSeparator:","`
	AllowCredentials bool     `yaml:"allow_credentials" env:"ALLOW_CREDENTIALS"`
	MaxAge           int      `yaml:"max_age"           env:"MAX_AGE"` // preflight cache seconds
}

// SigningConfig holds HMAC request-signature settings.
type SigningConfig struct {
	Enabled bool           `yaml:"enabled" env:"ENABLED"`
	Secret  RedactedString `yaml:"secret"  env:"SECRET"`

	// PreviousSecret is accepted alongside Secret until RotationGrace has
	// elapsed since the rotation, enabling zero-downtime rotation.
	PreviousSecret RedactedString `yaml:"previous_secret" env:"PREVIOUS_SECRET"`
	RotationGrace  string         `yaml:"rotation_grace"  env:"ROTATION_GRACE"`

	Tolerance string           `yaml:"tolerance" env:"TOLERANCE"` // timestamp skew window
	Algorithm SigningAlgorithm `yaml:"algorithm" env:"ALGORITHM"`

	// MaxNonces bounds the replay-tracking store. 0 uses the default (100000).
	MaxNonces int `yaml:"max_nonces" env:"MAX_NONCES"`
}

// SanitizeConfig holds input sanitization settings.
type SanitizeConfig struct {
	MaxInputLength int  `yaml:"max_input_length" env:"MAX_INPUT_LENGTH"`
	Strict         bool `yaml:"strict"           env:"STRICT"` // also flag markup/script fragments
}

// SecLogConfig holds security event logging settings.
type SecLogConfig struct {
	FilePath   string `yaml:"file_path"   env:"FILE_PATH"` // empty disables the file sink
	RecentSize int    `yaml:"recent_size" env:"RECENT_SIZE"`

	// An identity accumulating SuspicionThreshold events within
	// SuspicionWindow is flagged suspicious.
	SuspicionThreshold int    `yaml:"suspicion_threshold" env:"SUSPICION_THRESHOLD"`
	SuspicionWindow    string `yaml:"suspicion_window"    env:"SUSPICION_WINDOW"`
}

// OAuthConfig holds the managed YouTube OAuth2 credential settings.
type OAuthConfig struct {
	ClientID     string         `yaml:"client_id"     env:"CLIENT_ID"`
	ClientSecret RedactedString `yaml:"client_secret" env:"CLIENT_SECRET"`
	TokenFile    string         `yaml:"token_file"    env:"TOKEN_FILE"`
	Scopes       []string       `yaml:"scopes"        env:"SCOPES" envSeparator:","`

	// RefreshThreshold refreshes the access token when it expires within
	// this duration. Empty uses the default (5m).
	RefreshThreshold string `yaml:"refresh_threshold" env:"REFRESH_THRESHOLD"`

	// EncryptionSecret derives the at-rest key for the token file. When
	// empty, a machine-specific secret is derived from the hostname.
	EncryptionSecret RedactedString `yaml:"encryption_secret" env:"ENCRYPTION_SECRET"`
}

// AuthConfig holds bearer-token validation settings for the HTTP transport.
type AuthConfig struct {
	Enabled   bool           `yaml:"enabled"    env:"ENABLED"`
	JWTSecret RedactedString `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string         `yaml:"issuer"     env:"ISSUER"`
	Audience  string         `yaml:"audience"   env:"AUDIENCE"`

	// RequiredScope, when set, must be present in the token's scope claim
	// for tool calls. Empty disables scope enforcement.
	RequiredScope string `yaml:"required_scope" env:"REQUIRED_SCOPE"`

	// Resource identifies this server in protected-resource metadata.
	Resource             string   `yaml:"resource"              env:"RESOURCE"`
	AuthorizationServers []string `yaml:"authorization_servers" env:"AUTHORIZATION_SERVERS" envSeparator:","`
	ScopesSupported      []string `yaml:"scopes_supported"      env:"SCOPES_SUPPORTED" envSeparator:","`
}

// RegistryConfig holds dynamic client registration settings.
type RegistryConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path"    env:"DB_PATH"` // SQLite file path

	// RequireBootstrap gates POST /register behind BootstrapToken.
	RequireBootstrap bool           `yaml:"require_bootstrap" env:"REQUIRE_BOOTSTRAP"`
	BootstrapToken   RedactedString `yaml:"bootstrap_token"   env:"BOOTSTRAP_TOKEN"`

	// TokenSecret signs registration access tokens (HS256).
	TokenSecret RedactedString `yaml:"token_secret" env:"TOKEN_SECRET"`

	// SecretTTL is the client_secret validity period. Empty means no expiry.
	SecretTTL string `yaml:"secret_ttl" env:"SECRET_TTL"`
}

// EventsConfig holds the optional security-event webhook exporter settings.
// Events are batched and delivered asynchronously; a full buffer drops the
// oldest events rather than blocking the request path.
type EventsConfig struct {
	Enabled    bool   `yaml:"enabled"     env:"ENABLED"`
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`

	BatchSize     int    `yaml:"batch_size"     env:"BATCH_SIZE"`
	BufferSize    int    `yaml:"buffer_size"    env:"BUFFER_SIZE"`
	FlushInterval string `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	Timeout       string `yaml:"timeout"        env:"TIMEOUT"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"  env:"LEVEL"`
	Format LogFormat `yaml:"format" env:"FORMAT"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"      env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint"     env:"ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate  float64 `yaml:"sample_rate"  env:"SAMPLE_RATE"`
}

// RedactedString is a string that masks its value in String(), GoString(),
// and MarshalJSON() to prevent accidental leakage in logs or serialized
// output. Use .Value() to access the underlying secret.
type RedactedString string

const redactedPlaceholder = "[REDACTED]"

// Value returns the underlying secret string.
func (r RedactedString) Value() string { return string(r) }

// String implements fmt.Stringer. Non-empty values always render as a
// placeholder.
func (r RedactedString) String() string {
	if r == "" {
		return ""
	}
	return redactedPlaceholder
}

// GoString implements fmt.GoStringer for %#v.
func (r RedactedString) GoString() string { return r.String() }

// MarshalJSON masks the value in JSON output.
func (r RedactedString) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte(`""`), nil
	}
	return json.Marshal(redactedPlaceholder)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Defaults returns a Config populated with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			ReadTimeout:    "30s",
			WriteTimeout:   "60s",
			IdleTimeout:    "120s",
			DrainTimeout:   "30s",
			RequestTimeout: "60s",
			TLS: ServerTLSConfig{
				MinVersion: TLSVersion12,
			},
		},
		Admin: AdminConfig{
			Address:      ":9090",
			ReadTimeout:  "5s",
			WriteTimeout: "10s",
			IdleTimeout:  "30s",
		},
		YouTube: YouTubeConfig{
			Timeout:     "15s",
			MaxAttempts: 3,
			BackoffBase: "500ms",
			BackoffMax:  "8s",
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			User:            WindowLimits{PerMinute: 60, PerHour: 1000, PerDay: 10000},
			APIKey:          WindowLimits{PerMinute: 30, PerHour: 500, PerDay: 5000},
			IP:              WindowLimits{PerMinute: 10, PerHour: 300, PerDay: 2000},
			MaxIdentities:   10000,
			CleanupInterval: "1h",
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: CacheBackendSQLite,
			Path:    "tubegate-cache.db",
			Redis: RedisConfig{
				Endpoints: []string{"localhost:6379"},
				PoolSize:  10,
			},
			TTL: CacheTTLConfig{
				Default:    "1h",
				Search:     "15m",
				Video:      "1h",
				Channel:    "6h",
				Comments:   "30m",
				Transcript: "24h",
				Playlist:   "10m",
			},
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
			MaxAge:         86400,
		},
		Signing: SigningConfig{
			Tolerance:     "5m",
			RotationGrace: "24h",
			Algorithm:     SigningSHA256,
			MaxNonces:     100000,
		},
		Sanitize: SanitizeConfig{
			MaxInputLength: 2000,
		},
		SecLog: SecLogConfig{
			RecentSize:         1000,
			SuspicionThreshold: 5,
			SuspicionWindow:    "10m",
		},
		OAuth: OAuthConfig{
			TokenFile:        "tubegate-token.enc",
			Scopes:           []string{"https://www.googleapis.com/auth/youtube.force-ssl"},
			RefreshThreshold: "5m",
		},
		Registry: RegistryConfig{
			Path: "tubegate-registry.db",
		},
		Events: EventsConfig{
			BatchSize:     100,
			BufferSize:    10000,
			FlushInterval: "5s",
			Timeout:       "10s",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatJSON,
		},
		Tracing: TracingConfig{
			ServiceName: "tubegate",
			SampleRate:  0.1,
		},
	}
}

// ConfigFilePath returns the resolved config file path (from env or default).
func ConfigFilePath() string {
	configFile := os.Getenv("TUBEGATE_CONFIG_FILE")
	if configFile == "" {
		configFile = defaultConfigFile
	}
	return configFile
}

// Load reads configuration from a YAML file and overlays environment
// variable overrides. The config file path defaults to
// /etc/tubegate/config.yaml and can be overridden via TUBEGATE_CONFIG_FILE.
func Load() (*Config, error) {
	return LoadFromPath(ConfigFilePath())
}

// LoadFromPath reads configuration from the given YAML file and overlays
// environment variable overrides. Used by the config watcher to reload.
func LoadFromPath(configFile string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(configFile)
	if err == nil {
		if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configFile, yamlErr)
		}
	}
	// A missing file is fine: defaults + env overrides.

	if envErr := env.ParseWithOptions(cfg, env.Options{Prefix: "TUBEGATE_"}); envErr != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", envErr)
	}

	cfg.normalize()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalize lowercases all enum fields so that YAML values like "SQLite"
// or env values like "SHA256" match the canonical lowercase constants.
func (cfg *Config) normalize() {
	cfg.Cache.Backend = CacheBackend(strings.ToLower(string(cfg.Cache.Backend)))
	cfg.Signing.Algorithm = SigningAlgorithm(strings.ToLower(string(cfg.Signing.Algorithm)))
	cfg.Logging.Level = LogLevel(strings.ToLower(string(cfg.Logging.Level)))
	cfg.Logging.Format = LogFormat(strings.ToLower(string(cfg.Logging.Format)))
	cfg.Server.TLS.MinVersion = TLSVersion(normalizeTLSVersion(string(cfg.Server.TLS.MinVersion)))
}

// normalizeTLSVersion maps accepted spellings to canonical "1.2" / "1.3".
func normalizeTLSVersion(v string) string {
	switch strings.ToLower(v) {
	case "1.3", "tls13", "tls1.3":
		return string(TLSVersion13)
	case "1.2", "tls12", "tls1.2", "":
		return string(TLSVersion12)
	default:
		return v // validation catches invalid values
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks that the configuration is internally consistent.
func Validate(cfg *Config) error {
	if err := validateDurations(cfg); err != nil {
		return err
	}
	if err := validateTLS(cfg); err != nil {
		return err
	}
	if err := validateCache(cfg); err != nil {
		return err
	}
	if err := validateCORS(cfg); err != nil {
		return err
	}
	if err := validateSigning(cfg); err != nil {
		return err
	}
	if err := validateRateLimit(cfg); err != nil {
		return err
	}
	if err := validateAuth(cfg); err != nil {
		return err
	}
	if err := validateRegistry(cfg); err != nil {
		return err
	}
	if err := validateEvents(cfg); err != nil {
		return err
	}
	if err := validateLogging(cfg); err != nil {
		return err
	}
	return validateTracing(cfg)
}

func validateDurations(cfg *Config) error {
	durations := []struct {
		name, val string
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.idle_timeout", cfg.Server.IdleTimeout},
		{"server.drain_timeout", cfg.Server.DrainTimeout},
		{"server.request_timeout", cfg.Server.RequestTimeout},
		{"admin.read_timeout", cfg.Admin.ReadTimeout},
		{"admin.write_timeout", cfg.Admin.WriteTimeout},
		{"admin.idle_timeout", cfg.Admin.IdleTimeout},
		{"youtube.timeout", cfg.YouTube.Timeout},
		{"youtube.backoff_base", cfg.YouTube.BackoffBase},
		{"youtube.backoff_max", cfg.YouTube.BackoffMax},
		{"rate_limit.cleanup_interval", cfg.RateLimit.CleanupInterval},
		{"cache.ttl.default", cfg.Cache.TTL.Default},
		{"cache.ttl.search", cfg.Cache.TTL.Search},
		{"cache.ttl.video", cfg.Cache.TTL.Video},
		{"cache.ttl.channel", cfg.Cache.TTL.Channel},
		{"cache.ttl.comments", cfg.Cache.TTL.Comments},
		{"cache.ttl.transcript", cfg.Cache.TTL.Transcript},
		{"cache.ttl.playlist", cfg.Cache.TTL.Playlist},
		{"signing.tolerance", cfg.Signing.Tolerance},
		{"signing.rotation_grace", cfg.Signing.RotationGrace},
		{"seclog.suspicion_window", cfg.SecLog.SuspicionWindow},
		{"oauth.refresh_threshold", cfg.OAuth.RefreshThreshold},
		{"registry.secret_ttl", cfg.Registry.SecretTTL},
		{"events.flush_interval", cfg.Events.FlushInterval},
		{"events.timeout", cfg.Events.Timeout},
	}

	for _, d := range durations {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.val, err)
		}
	}
	return nil
}

func validateTLS(cfg *Config) error {
	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
	}
	if cfg.Server.TLS.HTTP3Enabled && !cfg.Server.TLS.Enabled {
		return fmt.Errorf("server.tls.http3_enabled requires server.tls.enabled (QUIC mandates TLS)")
	}
	if v := cfg.Server.TLS.MinVersion; v != "" && !v.Valid() {
		return fmt.Errorf("invalid server.tls.min_version %q: must be 1.2 or 1.3", v)
	}
	return nil
}

func validateCache(cfg *Config) error {
	if !cfg.Cache.Enabled {
		return nil
	}
	if !cfg.Cache.Backend.Valid() {
		return fmt.Errorf("invalid cache.backend %q: must be sqlite or redis", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == CacheBackendSQLite && cfg.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache.backend is sqlite")
	}
	if cfg.Cache.Backend == CacheBackendRedis && len(cfg.Cache.Redis.Endpoints) == 0 {
		return fmt.Errorf("cache.redis.endpoints is required when cache.backend is redis")
	}
	if cfg.Cache.Encrypt.Enabled && cfg.Cache.Encrypt.Secret == "" {
		return fmt.Errorf("cache.encrypt.secret is required when cache.encrypt.enabled is true")
	}
	if cfg.Cache.MemoryMaxCost < 0 {
		return fmt.Errorf("cache.memory_max_cost must be >= 0")
	}
	return nil
}

func validateCORS(cfg *Config) error {
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin == "*" {
			if cfg.CORS.AllowCredentials {
				// Credentialed requests with an allow-all origin are
				// mutually exclusive per the CORS security model.
				return fmt.Errorf("cors.allow_credentials cannot be combined with a %q origin", "*")
			}
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid cors origin %q: must start with http:// or https://", origin)
		}
	}
	return nil
}

func validateSigning(cfg *Config) error {
	if !cfg.Signing.Enabled {
		return nil
	}
	if len(cfg.Signing.Secret.Value()) < 32 {
		return fmt.Errorf("signing.secret must be at least 32 characters")
	}
	if a := cfg.Signing.Algorithm; a != "" && !a.Valid() {
		return fmt.Errorf("invalid signing.algorithm %q: must be sha256 or sha512", a)
	}
	if cfg.Signing.MaxNonces < 0 {
		return fmt.Errorf("signing.max_nonces must be >= 0")
	}
	return nil
}

func validateRateLimit(cfg *Config) error {
	for _, w := range []struct {
		name   string
		limits WindowLimits
	}{
		{"rate_limit.user", cfg.RateLimit.User},
		{"rate_limit.api_key", cfg.RateLimit.APIKey},
		{"rate_limit.ip", cfg.RateLimit.IP},
	} {
		if w.limits.PerMinute < 0 || w.limits.PerHour < 0 || w.limits.PerDay < 0 {
			return fmt.Errorf("%s limits must be >= 0", w.name)
		}
	}
	if cfg.RateLimit.MaxIdentities < 0 {
		return fmt.Errorf("rate_limit.max_identities must be >= 0")
	}
	return nil
}

func validateAuth(cfg *Config) error {
	if !cfg.Auth.Enabled {
		return nil
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if cfg.Auth.Resource == "" {
		return fmt.Errorf("auth.resource is required when auth is enabled")
	}
	return nil
}

func validateRegistry(cfg *Config) error {
	if !cfg.Registry.Enabled {
		return nil
	}
	if cfg.Registry.Path == "" {
		return fmt.Errorf("registry.path is required when registry is enabled")
	}
	if cfg.Registry.TokenSecret == "" {
		return fmt.Errorf("registry.token_secret is required when registry is enabled")
	}
	if cfg.Registry.RequireBootstrap && cfg.Registry.BootstrapToken == "" {
		return fmt.Errorf("registry.bootstrap_token is required when registry.require_bootstrap is true")
	}
	return nil
}

func validateEvents(cfg *Config) error {
	if !cfg.Events.Enabled {
		return nil
	}
	if cfg.Events.WebhookURL == "" {
		return fmt.Errorf("events.webhook_url is required when events are enabled")
	}
	if cfg.Events.BatchSize < 0 || cfg.Events.BufferSize < 0 {
		return fmt.Errorf("events.batch_size and events.buffer_size must be >= 0")
	}
	return nil
}

func validateLogging(cfg *Config) error {
	if l := cfg.Logging.Level; l != "" && !l.Valid() {
		return fmt.Errorf("invalid logging.level %q", l)
	}
	if f := cfg.Logging.Format; f != "" && !f.Valid() {
		return fmt.Errorf("invalid logging.format %q", f)
	}
	return nil
}

func validateTracing(cfg *Config) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	if cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}
	return nil
}

// ParseDuration parses s, returning def when s is empty or invalid.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	return d, nil
}
