package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Push     PushConfig     `yaml:"push"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds paths for the two backing stores: the durable account
// store and the auxiliary key-value store (blocks/mutes/keywords/settings).
type StorageConfig struct {
	DBPath  string `yaml:"db_path"`
	AuxPath string `yaml:"aux_path"`
}

// CacheConfig controls the user cache reconciler.
type CacheConfig struct {
	ReconcileEnabled bool   `yaml:"reconcile_enabled"`
	ReconcileCron    string `yaml:"reconcile_cron"`
}

// PushConfig holds tunables for push connections.
type PushConfig struct {
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
	ReadLimitBytes int `yaml:"read_limit_bytes"`
}

// SecurityConfig holds rate limiting and CORS settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Load reads a YAML config file from path. A missing path is not an error;
// the zero Config is returned so env and flags can fill everything in.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadEffective loads the config file and then applies SHIPBOARD_* env
// overrides. It reports whether any env var contributed a value so the
// startup banner can list config sources.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	envUsed := false
	if v := os.Getenv("SHIPBOARD_ADDR"); v != "" {
		envUsed = true
		host, port, perr := splitAddr(v)
		if perr != nil {
			return nil, false, perr
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if v := os.Getenv("SHIPBOARD_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SHIPBOARD_AUX_PATH"); v != "" {
		envUsed = true
		cfg.Storage.AuxPath = v
	}
	if v := os.Getenv("SHIPBOARD_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SHIPBOARD_RECONCILE_CRON"); v != "" {
		envUsed = true
		cfg.Cache.ReconcileEnabled = true
		cfg.Cache.ReconcileCron = v
	}
	return cfg, envUsed, nil
}

func splitAddr(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("invalid addr %q: expected host:port", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in addr %q: %w", addr, err)
	}
	return addr[:i], port, nil
}

// ParseCommandFlags registers and parses the standard server flags. It
// returns the raw values plus a set recording which flags the user
// explicitly provided (explicit flags win over env and file).
func ParseCommandFlags() (addr, db, aux, cfgPath string, set map[string]bool) {
	addrFlag := flag.String("addr", ":8080", "listen address")
	dbFlag := flag.String("db", "./data/db", "durable store path")
	auxFlag := flag.String("aux", "./data/aux", "auxiliary store path")
	cfgFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrFlag, *dbFlag, *auxFlag, *cfgFlag, set
}

// ResolveConfigPath picks the config file path: an explicit --config flag
// wins, then SHIPBOARD_CONFIG, then the conventional ./shipboard.yaml.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("SHIPBOARD_CONFIG"); v != "" {
		return v
	}
	return "./shipboard.yaml"
}
