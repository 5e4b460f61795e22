package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		Name         string        `yaml:"name"`
		APIKey       string        `yaml:"api_key"`
		APISecret    string        `yaml:"api_secret"`
		RESTEndpoint string        `yaml:"rest_endpoint"`
		WSEndpoint   string        `yaml:"ws_endpoint"`
		DepthStream  bool          `yaml:"depth_stream"`
		DepthMaxAge  time.Duration `yaml:"depth_max_age"`
		CallTimeout  time.Duration `yaml:"call_timeout"`
	} `yaml:"exchange"`
	Polling struct {
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"polling"`
	Logging struct {
		Level       string `yaml:"level"`
		JournalPath string `yaml:"journal_path"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Redis struct {
		Addr       string        `yaml:"addr"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		TLSEnabled bool          `yaml:"tls_enabled"`
		LockTTL    time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
	DryRun  bool                  `yaml:"dry_run"`
	Symbols []domain.SymbolConfig `yaml:"symbols"`
}

// Defaults returns a Config populated with the values used when the file omits them.
func Defaults() Config {
	var cfg Config
	cfg.Exchange.Name = "binance"
	cfg.Exchange.RESTEndpoint = "https://api.binance.com"
	cfg.Exchange.WSEndpoint = "wss://stream.binance.com:9443/stream"
	cfg.Exchange.DepthMaxAge = 5 * time.Second
	cfg.Exchange.CallTimeout = 15 * time.Second
	cfg.Polling.IntervalMs = 60000
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8080
	cfg.Storage.Path = "quoter.db"
	cfg.Redis.LockTTL = 2 * time.Minute
	return cfg
}

// Load reads the YAML file at path on top of Defaults, loads .env if present and
// applies QUOTER_* environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.APIKey, "QUOTER_API_KEY")
	setStr(&cfg.Exchange.APISecret, "QUOTER_API_SECRET")
	setStr(&cfg.Exchange.RESTEndpoint, "QUOTER_REST_ENDPOINT")
	setStr(&cfg.Redis.Addr, "QUOTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QUOTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QUOTER_REDIS_DB")
	setStr(&cfg.Logging.Level, "QUOTER_LOG_LEVEL")
	setStr(&cfg.Storage.Path, "QUOTER_STORAGE_PATH")
	setInt(&cfg.Server.Port, "QUOTER_SERVER_PORT")
	setBool(&cfg.DryRun, "QUOTER_DRY_RUN")
}

// Validate applies per-symbol defaults and checks every symbol. It mutates cfg.
func (c *Config) Validate() error {
	if c.Polling.IntervalMs <= 0 {
		return fmt.Errorf("%w: polling.interval_ms must be positive", domain.ErrInvalidConfig)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: no symbols configured", domain.ErrInvalidConfig)
	}
	// trades, balances and open orders are signed reads even in dry run
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("%w: api credentials are required", domain.ErrInvalidConfig)
	}
	if c.Redis.LockTTL <= c.Exchange.CallTimeout {
		return fmt.Errorf("%w: redis.lock_ttl must exceed exchange.call_timeout", domain.ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Symbols))
	for i := range c.Symbols {
		c.Symbols[i] = c.Symbols[i].WithDefaults()
		if err := c.Symbols[i].Validate(); err != nil {
			return err
		}
		if seen[c.Symbols[i].Symbol] {
			return fmt.Errorf("%w: duplicate symbol %s", domain.ErrInvalidConfig, c.Symbols[i].Symbol)
		}
		seen[c.Symbols[i].Symbol] = true
	}
	return nil
}

// PollInterval is the scheduler tick.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMs) * time.Millisecond
}

// EnabledSymbols returns the symbols the scheduler should drive.
func (c *Config) EnabledSymbols() []domain.SymbolConfig {
	var out []domain.SymbolConfig
	for _, s := range c.Symbols {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.Exchange.APIKey = mask(c.Exchange.APIKey)
	c.Exchange.APISecret = mask(c.Exchange.APISecret)
	c.Redis.Password = mask(c.Redis.Password)
	c.Symbols = append([]domain.SymbolConfig(nil), c.Symbols...)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
