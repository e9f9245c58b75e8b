package ledgerd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"leadfive/core/types"
	"leadfive/observability/logging"
	telemetry "leadfive/observability/otel"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for ledgerd.
type Config struct {
	ListenAddress string            `yaml:"listen"`
	PlanPath      string            `yaml:"plan"`
	DataDir       string            `yaml:"data_dir"`
	QueueDepth    int               `yaml:"queue_depth"`
	PauseOnStart  bool              `yaml:"pause"`
	Bootstrap     BootstrapConfig   `yaml:"bootstrap"`
	Idempotency   IdempotencyConfig `yaml:"idempotency"`
	Audit         AuditConfig       `yaml:"audit"`
	Auth          AuthConfig        `yaml:"auth"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
	Schedule      ScheduleConfig    `yaml:"schedule"`
	Logging       logging.Options   `yaml:"logging"`
	Telemetry     telemetry.Config  `yaml:"telemetry"`
}

// BootstrapConfig names the participant registered as the matrix root when
// the ledger is empty.
type BootstrapConfig struct {
	Root string `yaml:"root"`
	Tier uint32 `yaml:"tier"`
}

// IdempotencyConfig locates the request de-duplication store.
type IdempotencyConfig struct {
	Path string   `yaml:"path"`
	TTL  Duration `yaml:"ttl"`
}

// AuditConfig selects the audit log backend. Driver is postgres or sqlite.
type AuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Enabled         bool     `yaml:"enabled"`
	HMACSecret      string   `yaml:"hmac_secret"`
	HMACSecretFile  string   `yaml:"hmac_secret_file"`
	Issuer          string   `yaml:"issuer"`
	Audience        string   `yaml:"audience"`
	ScopeClaim      string   `yaml:"scope_claim"`
	GovernanceScope string   `yaml:"governance_scope"`
	PaymentScope    string   `yaml:"payment_scope"`
	ClockSkew       Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// ScheduleConfig sets the distribution interval of each pool. Unset intervals
// default to weekly for the help pool and monthly for the others.
type ScheduleConfig struct {
	Enabled bool     `yaml:"enabled"`
	Tick    Duration `yaml:"tick"`
	Leader  Duration `yaml:"leader"`
	Help    Duration `yaml:"help"`
	Club    Duration `yaml:"club"`
}

// Intervals returns the configured interval per pool.
func (s ScheduleConfig) Intervals() map[types.PoolName]time.Duration {
	out := make(map[types.PoolName]time.Duration, 3)
	if s.Leader.Duration > 0 {
		out[types.LeaderBonusPool] = s.Leader.Duration
	}
	if s.Help.Duration > 0 {
		out[types.GlobalHelpPool] = s.Help.Duration
	}
	if s.Club.Duration > 0 {
		out[types.ClubPool] = s.Club.Duration
	}
	return out
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.PlanPath == "" {
		cfg.PlanPath = "services/ledgerd/plan.toml"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/ledgerd"
	}
	if cfg.Idempotency.Path == "" {
		cfg.Idempotency.Path = cfg.DataDir + "/idempotency.db"
	}
	if cfg.Idempotency.TTL.Duration == 0 {
		cfg.Idempotency.TTL.Duration = 24 * time.Hour
	}
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = "sqlite"
	}
	if cfg.Audit.Driver == "sqlite" && cfg.Audit.DSN == "" {
		cfg.Audit.DSN = cfg.DataDir + "/audit.db"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.GovernanceScope == "" {
		cfg.Auth.GovernanceScope = "ledger.governance"
	}
	if cfg.Auth.PaymentScope == "" {
		cfg.Auth.PaymentScope = "ledger.payments"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 50
	}
	if cfg.Schedule.Tick.Duration == 0 {
		cfg.Schedule.Tick.Duration = time.Minute
	}
	if cfg.Schedule.Help.Duration == 0 {
		cfg.Schedule.Help.Duration = 7 * 24 * time.Hour
	}
	if cfg.Schedule.Leader.Duration == 0 {
		cfg.Schedule.Leader.Duration = 30 * 24 * time.Hour
	}
	if cfg.Schedule.Club.Duration == 0 {
		cfg.Schedule.Club.Duration = 30 * 24 * time.Hour
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ledgerd"
	}
}

func (a *AuthConfig) normalise() error {
	if a.HMACSecretFile == "" {
		return nil
	}
	raw, err := os.ReadFile(a.HMACSecretFile)
	if err != nil {
		return fmt.Errorf("read hmac secret: %w", err)
	}
	a.HMACSecret = strings.TrimSpace(string(raw))
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth enabled but no hmac secret configured")
	}
	switch cfg.Audit.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported audit driver %q", cfg.Audit.Driver)
	}
	if strings.TrimSpace(cfg.Audit.DSN) == "" {
		return fmt.Errorf("audit dsn must be configured")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if cfg.Bootstrap.Root != "" {
		if _, err := parseAddress(cfg.Bootstrap.Root); err != nil {
			return fmt.Errorf("bootstrap root: %w", err)
		}
		if cfg.Bootstrap.Tier == 0 {
			return fmt.Errorf("bootstrap tier must be configured with a root")
		}
	}
	if cfg.Schedule.Tick.Duration < time.Second {
		return fmt.Errorf("schedule tick must be at least 1s")
	}
	return nil
}
