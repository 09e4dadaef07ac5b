package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	imapbase "aaronromeo.com/inboxsweep/internal/imap/base"
	"aaronromeo.com/inboxsweep/internal/optimistic"
	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/internal/scheduler"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfig = "INBOXSWEEP_CONFIG"

	envIMAPHost            = "INBOXSWEEP_IMAP_HOST"
	envIMAPPort            = "INBOXSWEEP_IMAP_PORT"
	envIMAPUser            = "INBOXSWEEP_IMAP_USER"
	EnvIMAPPass            = "INBOXSWEEP_IMAP_PASS"
	envGmailCredentials    = "INBOXSWEEP_GMAIL_CREDENTIALS_FILE"
	envGmailToken          = "INBOXSWEEP_GMAIL_TOKEN_FILE"
	envRedisURL            = "INBOXSWEEP_REDIS_URL"
	envPostgresDSN         = "INBOXSWEEP_POSTGRES_DSN"
	envAMQPURL             = "INBOXSWEEP_AMQP_URL"
	envWebhookURL          = "INBOXSWEEP_WEBHOOK_URL"
	envHTTPAddr            = "INBOXSWEEP_HTTP_ADDR"
	envTelemetryEnabled    = "INBOXSWEEP_TELEMETRY"
	defaultEnvFile         = ".env"
	defaultSQLitePath      = "inboxsweep.db"
	defaultHTTPAddr        = ":8080"
	defaultInboxLimit      = 200
	defaultAMQPExchange    = "inboxsweep"
	defaultRedisKeyPrefix  = "inboxsweep"
	defaultKeyringFileDir  = "~/.config/inboxsweep/credentials"
	defaultTelemetryLogger = "otlp"
)

const (
	ProviderIMAP  = "imap"
	ProviderGmail = "gmail"

	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Duration accepts Go duration syntax or a number of days such as "2d".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseRelativeDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds non-secret configuration loaded from YAML.
type Config struct {
	Provider  Provider  `yaml:"provider"`
	Scheduler Scheduler `yaml:"scheduler"`
	Queue     Queue     `yaml:"queue"`
	Undo      Undo      `yaml:"undo"`
	Store     Store     `yaml:"store"`
	Announcer Announcer `yaml:"announcer"`
	HTTP      HTTP      `yaml:"http"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type Provider struct {
	Kind string `yaml:"kind"`
	// InboxLimit bounds how many inbox messages a refresh loads.
	InboxLimit int   `yaml:"inbox_limit"`
	IMAP       IMAP  `yaml:"imap"`
	Gmail      Gmail `yaml:"gmail"`
}

type IMAP struct {
	Host               string           `yaml:"host"`
	Port               int              `yaml:"port"`
	User               string           `yaml:"user"`
	InsecureSkipVerify bool             `yaml:"insecure_skip_verify"`
	KeyringDir         string           `yaml:"keyring_dir"`
	Folders            imapbase.Folders `yaml:"folders"`
}

func (i IMAP) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

type Gmail struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

type Scheduler struct {
	MinInterval       Duration `yaml:"min_interval"`
	BaseDelay         Duration `yaml:"base_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxRetries        int      `yaml:"max_retries"`
}

func (s Scheduler) Config() scheduler.Config {
	return scheduler.Config{
		MinInterval:       s.MinInterval.Std(),
		BaseDelay:         s.BaseDelay.Std(),
		BackoffMultiplier: s.BackoffMultiplier,
		MaxRetries:        s.MaxRetries,
	}
}

type Queue struct {
	MaxRetries int `yaml:"max_retries"`
}

func (q Queue) Config() queue.Config {
	return queue.Config{MaxRetries: q.MaxRetries}
}

type Undo struct {
	Capacity         int `yaml:"capacity"`
	UntrashBatchSize int `yaml:"untrash_batch_size"`
}

func (u Undo) Config() optimistic.Config {
	return optimistic.Config{UndoCapacity: u.Capacity, UntrashBatchSize: u.UntrashBatchSize}
}

type Store struct {
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	RedisURL    string `yaml:"-"`
	RedisPrefix string `yaml:"redis_prefix"`
	PostgresDSN string `yaml:"-"`
}

type Announcer struct {
	WebhookURL   string `yaml:"-"`
	AMQPURL      string `yaml:"-"`
	AMQPExchange string `yaml:"amqp_exchange"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Telemetry struct {
	Enabled bool `yaml:"enabled"`
	// Logger selects the log exporter: "otlp" or "stdout".
	Logger string `yaml:"logger"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	sched := scheduler.DefaultConfig()
	undo := optimistic.DefaultConfig()
	return Config{
		Provider: Provider{
			Kind:       ProviderIMAP,
			InboxLimit: defaultInboxLimit,
			IMAP: IMAP{
				Port:       993,
				KeyringDir: defaultKeyringFileDir,
				Folders:    imapbase.DefaultFolders(),
			},
		},
		Scheduler: Scheduler{
			MinInterval:       Duration(sched.MinInterval),
			BaseDelay:         Duration(sched.BaseDelay),
			BackoffMultiplier: sched.BackoffMultiplier,
			MaxRetries:        sched.MaxRetries,
		},
		Queue:     Queue{MaxRetries: queue.DefaultConfig().MaxRetries},
		Undo:      Undo{Capacity: undo.UndoCapacity, UntrashBatchSize: undo.UntrashBatchSize},
		Store:     Store{Backend: StoreSQLite, SQLitePath: defaultSQLitePath, RedisPrefix: defaultRedisKeyPrefix},
		Announcer: Announcer{AMQPExchange: defaultAMQPExchange},
		HTTP:      HTTP{Addr: defaultHTTPAddr},
		Telemetry: Telemetry{Logger: defaultTelemetryLogger},
	}
}

func ParseRelativeDuration(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasSuffix(trimmed, "d") {
		daysValue := strings.TrimSuffix(trimmed, "d")
		days, err := strconv.ParseFloat(strings.TrimSpace(daysValue), 64)
		if err != nil {
			return 0, err
		}
		if days < 0 {
			return 0, errors.New("duration must be positive")
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	dur, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, errors.New("duration must be positive")
	}
	return dur, nil
}

// Load reads configuration from a YAML file on top of Default and applies environment
// overrides. An empty path yields the defaults plus the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Provider.IMAP.Folders = cfg.Provider.IMAP.Folders.WithDefaults()
	return cfg, nil
}

// LoadEnvFile loads path (".env" when empty) into the process environment if it exists.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Provider.IMAP.Host, envIMAPHost)
	setString(&cfg.Provider.IMAP.User, envIMAPUser)
	setString(&cfg.Provider.Gmail.CredentialsFile, envGmailCredentials)
	setString(&cfg.Provider.Gmail.TokenFile, envGmailToken)
	setString(&cfg.Store.RedisURL, envRedisURL)
	setString(&cfg.Store.PostgresDSN, envPostgresDSN)
	setString(&cfg.Announcer.AMQPURL, envAMQPURL)
	setString(&cfg.Announcer.WebhookURL, envWebhookURL)
	setString(&cfg.HTTP.Addr, envHTTPAddr)

	if raw := strings.TrimSpace(os.Getenv(envIMAPPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envIMAPPort, err)
		}
		cfg.Provider.IMAP.Port = port
	}
	if raw := strings.TrimSpace(os.Getenv(envTelemetryEnabled)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envTelemetryEnabled, err)
		}
		cfg.Telemetry.Enabled = enabled
	}
	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// Validate rejects configurations the components cannot run with.
func Validate(cfg Config) error {
	var errs []error

	switch cfg.Provider.Kind {
	case ProviderIMAP:
		if strings.TrimSpace(cfg.Provider.IMAP.Host) == "" {
			errs = append(errs, fmt.Errorf("provider.imap.host is required (or %s)", envIMAPHost))
		}
		if strings.TrimSpace(cfg.Provider.IMAP.User) == "" {
			errs = append(errs, fmt.Errorf("provider.imap.user is required (or %s)", envIMAPUser))
		}
		if cfg.Provider.IMAP.Port <= 0 || cfg.Provider.IMAP.Port > 65535 {
			errs = append(errs, fmt.Errorf("provider.imap.port %d is out of range", cfg.Provider.IMAP.Port))
		}
	case ProviderGmail:
		if strings.TrimSpace(cfg.Provider.Gmail.CredentialsFile) == "" {
			errs = append(errs, fmt.Errorf("provider.gmail.credentials_file is required (or %s)", envGmailCredentials))
		}
		if strings.TrimSpace(cfg.Provider.Gmail.TokenFile) == "" {
			errs = append(errs, fmt.Errorf("provider.gmail.token_file is required (or %s)", envGmailToken))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider.kind %q", cfg.Provider.Kind))
	}
	if cfg.Provider.InboxLimit < 0 {
		errs = append(errs, errors.New("provider.inbox_limit must not be negative"))
	}

	if cfg.Scheduler.MinInterval < 0 || cfg.Scheduler.BaseDelay < 0 {
		errs = append(errs, errors.New("scheduler intervals must not be negative"))
	}
	if cfg.Scheduler.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("scheduler.backoff_multiplier %.2f must be at least 1", cfg.Scheduler.BackoffMultiplier))
	}
	if cfg.Scheduler.MaxRetries < 0 {
		errs = append(errs, errors.New("scheduler.max_retries must not be negative"))
	}
	if cfg.Queue.MaxRetries < 1 {
		errs = append(errs, errors.New("queue.max_retries must be at least 1"))
	}
	if cfg.Undo.Capacity < 1 {
		errs = append(errs, errors.New("undo.capacity must be at least 1"))
	}
	if cfg.Undo.UntrashBatchSize < 1 {
		errs = append(errs, errors.New("undo.untrash_batch_size must be at least 1"))
	}

	switch cfg.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(cfg.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case StoreRedis:
		if cfg.Store.RedisURL == "" {
			errs = append(errs, fmt.Errorf("%s is required for the redis backend", envRedisURL))
		}
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s is required for the postgres backend", envPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", cfg.Store.Backend))
	}

	switch cfg.Telemetry.Logger {
	case "otlp", "stdout":
	default:
		errs = append(errs, fmt.Errorf("unknown telemetry.logger %q", cfg.Telemetry.Logger))
	}

	return errors.Join(errs...)
}

// Summary returns a concise config summary for validation runs.
func Summary(cfg Config) string {
	return fmt.Sprintf(
		"Config summary\n"+
			"- provider: %s\n"+
			"- scheduler: min interval %s, base delay %s, x%.1f, %d retries\n"+
			"- queue: %d retries before eviction\n"+
			"- undo: capacity %d, untrash batches of %d\n"+
			"- store: %s\n"+
			"- announcer: %s\n"+
			"- http: %s\n"+
			"- telemetry: %s",
		providerSummary(cfg.Provider),
		cfg.Scheduler.MinInterval.Std(), cfg.Scheduler.BaseDelay.Std(),
		cfg.Scheduler.BackoffMultiplier, cfg.Scheduler.MaxRetries,
		cfg.Queue.MaxRetries,
		cfg.Undo.Capacity, cfg.Undo.UntrashBatchSize,
		storeSummary(cfg.Store),
		announcerSummary(cfg.Announcer),
		defaultIfEmpty(cfg.HTTP.Addr, "(disabled)"),
		enabled(cfg.Telemetry.Enabled),
	)
}

func providerSummary(p Provider) string {
	if p.Kind == ProviderGmail {
		return "gmail"
	}
	return fmt.Sprintf("imap %s as %s", p.IMAP.Addr(), defaultIfEmpty(p.IMAP.User, "(not set)"))
}

func storeSummary(s Store) string {
	switch s.Backend {
	case StoreSQLite:
		return "sqlite at " + s.SQLitePath
	case StoreRedis:
		return "redis with prefix " + s.RedisPrefix
	default:
		return s.Backend
	}
}

func announcerSummary(a Announcer) string {
	var sinks []string
	if a.WebhookURL != "" {
		sinks = append(sinks, "webhook")
	}
	if a.AMQPURL != "" {
		sinks = append(sinks, "amqp exchange "+a.AMQPExchange)
	}
	if len(sinks) == 0 {
		return "log only"
	}
	return strings.Join(sinks, ", ")
}

func enabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
