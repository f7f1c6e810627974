package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Graph       GraphConfig       `yaml:"graph"`
	Neuprint    NeuprintConfig    `yaml:"neuprint"`
	CAVE        CAVEConfig        `yaml:"cave"`
	Cascade     CascadeConfig     `yaml:"cascade"`
	Memo        MemoConfig        `yaml:"memo"`
	Redis       RedisConfig       `yaml:"redis"`
	Badger      BadgerConfig      `yaml:"badger"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore"`
	CrossRef    CrossRefConfig    `yaml:"crossref"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MetricsEnabled    bool          `yaml:"metricsEnabled"`
	AllowedOriginsCSV string        `yaml:"allowedOrigins"`
}

// GraphConfig describes connectivity to the neuPrint graph: a bolt:// URI for a local
// Neo4j store or an https:// neuPrint server.
type GraphConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	Username       string `yaml:"username"`
	Password       string `yaml:"-"`
	MaxConnections int    `yaml:"maxConnections"`
}

// NeuprintConfig holds settings used when Graph.URI points at a neuPrint HTTP server.
type NeuprintConfig struct {
	Dataset           string        `yaml:"dataset"`
	Token             string        `yaml:"-"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// CAVEConfig describes the synapse-table service. A positive YLimit drops synapses whose
// presynaptic y is not below it; zero disables the filter.
type CAVEConfig struct {
	Server            string        `yaml:"server"`
	Datastack         string        `yaml:"datastack"`
	Token             string        `yaml:"-"`
	YLimit            float64       `yaml:"yLimit"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// CascadeConfig holds crawler defaults.
type CascadeConfig struct {
	// Source is neuprint, cave or synthetic.
	Source              string  `yaml:"source"`
	ResultsDir          string  `yaml:"resultsDir"`
	SyntheticDir        string  `yaml:"syntheticDir"`
	ConnectionThreshold int64   `yaml:"connectionThreshold"`
	PercentageThreshold float64 `yaml:"percentageThreshold"`
	MaxLayers           int     `yaml:"maxLayers"`
	Workers             int     `yaml:"workers"`
}

// MemoConfig selects the processed-neuron memo.
type MemoConfig struct {
	// Backend is directory, memory, redis or badger.
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig describes the shared memo store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// BadgerConfig describes the embedded memo store.
type BadgerConfig struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"inMemory"`
	SyncWrites bool   `yaml:"syncWrites"`
}

// ObjectStoreConfig enables result storage on S3-compatible object storage.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Enabled reports whether results go to object storage instead of the filesystem.
func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// CrossRefConfig locates the identity lookup tables.
type CrossRefConfig struct {
	TablePath    string `yaml:"table"`
	SnapshotPath string `yaml:"snapshot"`
	Strategy     string `yaml:"strategy"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // text|json
	Colored       bool   `yaml:"colored"`
	IncludeCaller bool   `yaml:"includeCaller"`
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphMaxSessions = 10
	defaultNeuprintDataset  = "manc:v1.2.1"
	defaultCAVEServer       = "https://global.daf-apis.com"
	defaultCAVEDatastack    = "fanc_production_mar2021"
	defaultRequestTimeout   = 60 * time.Second
	defaultRequestsPerSec   = 5
	defaultBurst            = 5
	defaultSource           = "neuprint"
	defaultResultsDir       = "results"
	defaultConnThreshold    = 3
	defaultPctThreshold     = 0.5
	defaultMaxLayers        = 3
	defaultWorkers          = 4
	defaultMemoBackend      = "directory"
	defaultRedisAddr        = "localhost:6379"
	defaultBadgerPath       = "data/memo"
	defaultMatchStrategy    = "strict"
)

// Defaults returns the configuration used when neither a file nor the environment
// overrides a value.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:            defaultHost,
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Graph: GraphConfig{MaxConnections: defaultGraphMaxSessions},
		Neuprint: NeuprintConfig{
			Dataset:           defaultNeuprintDataset,
			Timeout:           defaultRequestTimeout,
			RequestsPerSecond: defaultRequestsPerSec,
			Burst:             defaultBurst,
		},
		CAVE: CAVEConfig{
			Server:            defaultCAVEServer,
			Datastack:         defaultCAVEDatastack,
			Timeout:           defaultRequestTimeout,
			RequestsPerSecond: defaultRequestsPerSec,
			Burst:             defaultBurst,
		},
		Cascade: CascadeConfig{
			Source:              defaultSource,
			ResultsDir:          defaultResultsDir,
			ConnectionThreshold: defaultConnThreshold,
			PercentageThreshold: defaultPctThreshold,
			MaxLayers:           defaultMaxLayers,
			Workers:             defaultWorkers,
		},
		Memo:     MemoConfig{Backend: defaultMemoBackend},
		Redis:    RedisConfig{Addr: defaultRedisAddr},
		Badger:   BadgerConfig{Path: defaultBadgerPath},
		CrossRef: CrossRefConfig{Strategy: defaultMatchStrategy},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
	}
}

// Load reads configuration from a .env file, an optional YAML file named by
// CONNECTOME_CONFIG and environment variables, in increasing order of precedence.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONNECTOME_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTP.Host = valueOrDefault("SERVER_HOST", cfg.HTTP.Host)
	cfg.Logging = LoggingConfig{
		Level:         valueOrDefault("LOG_LEVEL", cfg.Logging.Level),
		Format:        valueOrDefault("LOG_FORMAT", cfg.Logging.Format),
		Colored:       parseBoolWithDefault("LOG_COLOR", cfg.Logging.Colored),
		IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", cfg.Logging.IncludeCaller),
	}
	cfg.Graph = GraphConfig{
		URI:            valueOrDefault("GRAPH_URI", cfg.Graph.URI),
		Database:       valueOrDefault("GRAPH_DATABASE", cfg.Graph.Database),
		Username:       valueOrDefault("GRAPH_USERNAME", cfg.Graph.Username),
		Password:       valueOrDefault("GRAPH_PASSWORD", cfg.Graph.Password),
		MaxConnections: parseIntWithDefault("GRAPH_MAX_CONNECTIONS", cfg.Graph.MaxConnections),
	}
	cfg.Neuprint.Dataset = valueOrDefault("NEUPRINT_DATASET", cfg.Neuprint.Dataset)
	cfg.Neuprint.Token = valueOrDefault("NEUPRINT_APPLICATION_CREDENTIALS", cfg.Neuprint.Token)
	cfg.Neuprint.RequestsPerSecond = parseFloatWithDefault("NEUPRINT_REQUESTS_PER_SECOND", cfg.Neuprint.RequestsPerSecond)
	cfg.Neuprint.Burst = parseIntWithDefault("NEUPRINT_BURST", cfg.Neuprint.Burst)

	cfg.CAVE.Server = valueOrDefault("CAVE_SERVER", cfg.CAVE.Server)
	cfg.CAVE.Datastack = valueOrDefault("CAVE_DATASTACK", cfg.CAVE.Datastack)
	cfg.CAVE.Token = valueOrDefault("CAVE_TOKEN", cfg.CAVE.Token)
	cfg.CAVE.YLimit = parseFloatWithDefault("CAVE_Y_LIMIT", cfg.CAVE.YLimit)
	cfg.CAVE.RequestsPerSecond = parseFloatWithDefault("CAVE_REQUESTS_PER_SECOND", cfg.CAVE.RequestsPerSecond)
	cfg.CAVE.Burst = parseIntWithDefault("CAVE_BURST", cfg.CAVE.Burst)

	cfg.Cascade.Source = valueOrDefault("CASCADE_SOURCE", cfg.Cascade.Source)
	cfg.Cascade.ResultsDir = valueOrDefault("CASCADE_RESULTS_DIR", cfg.Cascade.ResultsDir)
	cfg.Cascade.SyntheticDir = valueOrDefault("CASCADE_SYNTHETIC_DIR", cfg.Cascade.SyntheticDir)
	cfg.Cascade.ConnectionThreshold = int64(parseIntWithDefault("CASCADE_CONNECTION_THRESHOLD", int(cfg.Cascade.ConnectionThreshold)))
	cfg.Cascade.PercentageThreshold = parseFloatWithDefault("CASCADE_PERCENTAGE_THRESHOLD", cfg.Cascade.PercentageThreshold)
	cfg.Cascade.MaxLayers = parseIntWithDefault("CASCADE_MAX_LAYERS", cfg.Cascade.MaxLayers)
	cfg.Cascade.Workers = parseIntWithDefault("CASCADE_WORKERS", cfg.Cascade.Workers)

	cfg.Memo.Backend = valueOrDefault("MEMO_BACKEND", cfg.Memo.Backend)
	cfg.Redis.Addr = valueOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = valueOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = parseIntWithDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Badger.Path = valueOrDefault("BADGER_PATH", cfg.Badger.Path)
	cfg.Badger.InMemory = parseBoolWithDefault("BADGER_IN_MEMORY", cfg.Badger.InMemory)
	cfg.Badger.SyncWrites = parseBoolWithDefault("BADGER_SYNC_WRITES", cfg.Badger.SyncWrites)

	cfg.ObjectStore.Endpoint = valueOrDefault("OBJECT_STORE_ENDPOINT", cfg.ObjectStore.Endpoint)
	cfg.ObjectStore.AccessKey = valueOrDefault("OBJECT_STORE_ACCESS_KEY", cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = valueOrDefault("OBJECT_STORE_SECRET_KEY", cfg.ObjectStore.SecretKey)
	cfg.ObjectStore.Bucket = valueOrDefault("OBJECT_STORE_BUCKET", cfg.ObjectStore.Bucket)
	cfg.ObjectStore.Prefix = valueOrDefault("OBJECT_STORE_PREFIX", cfg.ObjectStore.Prefix)
	cfg.ObjectStore.Region = valueOrDefault("OBJECT_STORE_REGION", cfg.ObjectStore.Region)
	cfg.ObjectStore.UseSSL = parseBoolWithDefault("OBJECT_STORE_USE_SSL", cfg.ObjectStore.UseSSL)

	cfg.CrossRef.TablePath = valueOrDefault("CROSSREF_TABLE", cfg.CrossRef.TablePath)
	cfg.CrossRef.SnapshotPath = valueOrDefault("CROSSREF_SNAPSHOT", cfg.CrossRef.SnapshotPath)
	cfg.CrossRef.Strategy = valueOrDefault("CROSSREF_STRATEGY", cfg.CrossRef.Strategy)

	port, err := parsePort("SERVER_PORT", cfg.HTTP.Port)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"NEUPRINT_TIMEOUT", &cfg.Neuprint.Timeout},
		{"CAVE_TIMEOUT", &cfg.CAVE.Timeout},
		{"MEMO_TTL", &cfg.Memo.TTL},
	}
	for _, d := range durations {
		v, err := parseDurationWithDefault(d.key, *d.target)
		if err != nil {
			return Config{}, err
		}
		*d.target = v
	}

	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("SERVER_METRICS_ENABLED", cfg.HTTP.MetricsEnabled)
	cfg.HTTP.AllowedOriginsCSV = valueOrDefault("SERVER_ALLOWED_ORIGINS", cfg.HTTP.AllowedOriginsCSV)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	switch c.Cascade.Source {
	case "neuprint", "cave", "synthetic":
	default:
		return fmt.Errorf("invalid CASCADE_SOURCE %q", c.Cascade.Source)
	}
	switch c.Memo.Backend {
	case "directory", "memory", "redis", "badger":
	default:
		return fmt.Errorf("invalid MEMO_BACKEND %q", c.Memo.Backend)
	}
	if c.Cascade.Source == "synthetic" && c.Cascade.SyntheticDir == "" {
		return fmt.Errorf("CASCADE_SYNTHETIC_DIR is required for the synthetic source")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseFloatWithDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
