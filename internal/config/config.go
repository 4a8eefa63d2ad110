package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"arm-ai/internal/logging"
)

const envPrefix = "ARMAI"

// Store backends understood by the application.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendBadger    = "badger"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Logging  logging.Config `mapstructure:"logging" yaml:"logging"`
	Risk     RiskThresholds `mapstructure:"risk" yaml:"risk"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Models   ModelConfig    `mapstructure:"models" yaml:"models"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Features FeatureConfig  `mapstructure:"features" yaml:"features"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Alerting AlertingConfig `mapstructure:"alerting" yaml:"alerting"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls the Prometheus endpoint served during watch.
type MetricsConfig struct {
	// Listen is a host:port for /metrics. Empty disables the endpoint.
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" yaml:"name" validate:"required"`
	Environment string `mapstructure:"environment" yaml:"environment" validate:"required,oneof=development staging production"`
}

// RiskThresholds are the limits autonomous risk decisions are taken against.
// Percentages are fractions, so 0.10 means 10%.
type RiskThresholds struct {
	MaxPositionSizePct   float64         `mapstructure:"max_position_size_pct" yaml:"max_position_size_pct" validate:"gt=0,lt=1"`
	MaxDrawdownPct       float64         `mapstructure:"max_drawdown_pct" yaml:"max_drawdown_pct" validate:"gt=0,lt=1"`
	VolatilityThreshold  float64         `mapstructure:"volatility_threshold" yaml:"volatility_threshold" validate:"gt=0,lt=1"`
	CorrelationThreshold float64         `mapstructure:"correlation_threshold" yaml:"correlation_threshold" validate:"gt=0,lt=1"`
	LiquidityMinUSD      decimal.Decimal `mapstructure:"liquidity_min_usd" yaml:"liquidity_min_usd"`
	StopLossDefault      float64         `mapstructure:"stop_loss_default" yaml:"stop_loss_default" validate:"gt=0,lt=1"`
	TakeProfitRatio      float64         `mapstructure:"take_profit_ratio" yaml:"take_profit_ratio" validate:"gte=1"`
}

// StoreConfig describes the document store holding risk events and state snapshots.
type StoreConfig struct {
	Backend                  string `mapstructure:"backend" yaml:"backend" validate:"oneof=firestore postgres badger"`
	CredentialsPath          string `mapstructure:"credentials_path" yaml:"credentials_path"`
	ProjectID                string `mapstructure:"project_id" yaml:"project_id"`
	RiskEventsCollection     string `mapstructure:"risk_events_collection" yaml:"risk_events_collection" validate:"required"`
	PortfolioStateCollection string `mapstructure:"portfolio_state_collection" yaml:"portfolio_state_collection" validate:"required"`
	ModelStateCollection     string `mapstructure:"model_state_collection" yaml:"model_state_collection" validate:"required"`
	BadgerPath               string `mapstructure:"badger_path" yaml:"badger_path"`
	BadgerInMemory           bool   `mapstructure:"badger_in_memory" yaml:"badger_in_memory"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the postgres backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// ModelConfig holds forecasting ensemble settings.
type ModelConfig struct {
	TrainingInterval   time.Duration      `mapstructure:"training_interval" yaml:"training_interval" validate:"gt=0"`
	PredictionInterval time.Duration      `mapstructure:"prediction_interval" yaml:"prediction_interval" validate:"gt=0"`
	EnsembleWeights    map[string]float64 `mapstructure:"ensemble_weights" yaml:"ensemble_weights" validate:"dive,gte=0"`
	FeatureWindow      int                `mapstructure:"feature_window" yaml:"feature_window" validate:"gt=0"`
}

// APIConfig governs outbound request behaviour.
type APIConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
	RequestDelay time.Duration `mapstructure:"request_delay" yaml:"request_delay" validate:"gte=0"`
}

// FeatureConfig lists the technical indicators fed to the models, in order.
type FeatureConfig struct {
	TechnicalIndicators []string `mapstructure:"technical_indicators" yaml:"technical_indicators" validate:"min=1,dive,required"`
}

// WatchConfig tunes the pending risk event consumer.
type WatchConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`
	// Align snaps ticks to multiples of Interval.
	Align        bool          `mapstructure:"align" yaml:"align"`
	StartupDelay time.Duration `mapstructure:"startup_delay" yaml:"startup_delay" validate:"gte=0"`
	// TickTimeout bounds one drain pass. Zero disables it.
	TickTimeout time.Duration `mapstructure:"tick_timeout" yaml:"tick_timeout" validate:"gte=0"`
	// AdvisoryLockKey elects one watcher across processes on the postgres
	// backend. Zero disables the lock.
	AdvisoryLockKey int64 `mapstructure:"advisory_lock_key" yaml:"advisory_lock_key"`
}

// AlertingConfig routes pending risk events to operators during watch.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// TelegramConfig describes the Telegram notifier.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	APIBase  string `mapstructure:"api_base" yaml:"api_base" validate:"omitempty,url"`
}

// DefaultEnsembleWeights returns the weights used when none are configured.
func DefaultEnsembleWeights() map[string]float64 {
	return map[string]float64{
		"isolation_forest":  0.3,
		"gradient_boosting": 0.4,
		"lstm":              0.3,
	}
}

// DefaultTechnicalIndicators returns the default indicator list.
func DefaultTechnicalIndicators() []string {
	return []string{
		"rsi", "macd", "bollinger_upper", "bollinger_lower",
		"atr", "volume_ratio", "vwap", "momentum",
	}
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Models.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the unprefixed variable names deployments already export.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"store.credentials_path": "FIREBASE_CREDENTIALS_PATH",
		"store.project_id":       "FIREBASE_PROJECT_ID",
		"logging.level":          "LOG_LEVEL",
	}
	for key, name := range legacy {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return fmt.Errorf("bind env %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arm-ai")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "./logs/arm_ai.log")

	v.SetDefault("risk.max_position_size_pct", 0.10)
	v.SetDefault("risk.max_drawdown_pct", 0.15)
	v.SetDefault("risk.volatility_threshold", 0.03)
	v.SetDefault("risk.correlation_threshold", 0.85)
	v.SetDefault("risk.liquidity_min_usd", "100000")
	v.SetDefault("risk.stop_loss_default", 0.05)
	v.SetDefault("risk.take_profit_ratio", 2.0)

	v.SetDefault("store.backend", BackendFirestore)
	v.SetDefault("store.credentials_path", "./firebase-credentials.json")
	v.SetDefault("store.project_id", "arm-ai-system")
	v.SetDefault("store.risk_events_collection", "risk_events")
	v.SetDefault("store.portfolio_state_collection", "portfolio_state")
	v.SetDefault("store.model_state_collection", "model_state")
	v.SetDefault("store.badger_path", "./data/state")
	v.SetDefault("store.badger_in_memory", false)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("models.training_interval", "24h")
	v.SetDefault("models.prediction_interval", "5m")
	v.SetDefault("models.feature_window", 50)

	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.request_delay", "1s")

	v.SetDefault("features.technical_indicators", DefaultTechnicalIndicators())

	v.SetDefault("watch.interval", "1m")
	v.SetDefault("watch.batch_size", 50)
	v.SetDefault("watch.align", false)
	v.SetDefault("watch.startup_delay", "0s")
	v.SetDefault("watch.tick_timeout", "5m")
	v.SetDefault("watch.advisory_lock_key", 0)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			decimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(value))
		case float64:
			return decimal.NewFromFloat(value), nil
		case float32:
			return decimal.NewFromFloat32(value), nil
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		}
		return data, nil
	}
}

// ApplyDefaults fills the ensemble weights when none were supplied. A supplied
// mapping is kept as is. Viper cannot tell an absent key from an explicit
// `ensemble_weights: {}`, so an empty mapping is treated as absent.
func (m *ModelConfig) ApplyDefaults() {
	if len(m.EnsembleWeights) == 0 {
		m.EnsembleWeights = DefaultEnsembleWeights()
	}
}

// WeightSum adds up the ensemble weights.
func (m ModelConfig) WeightSum() float64 {
	sum := 0.0
	for _, w := range m.EnsembleWeights {
		sum += w
	}
	return sum
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Risk.LiquidityMinUSD.IsPositive() {
		return fmt.Errorf("risk.liquidity_min_usd must be greater than zero")
	}
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case BackendBadger:
		if c.Store.BadgerPath == "" && !c.Store.BadgerInMemory {
			return fmt.Errorf("store.badger_path is required unless store.badger_in_memory is set")
		}
	case BackendFirestore:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id is required for the firestore backend")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// Redacted returns a copy safe to print: database credentials and the bot
// token are masked.
func (c Config) Redacted() Config {
	out := c
	if c.Alerting.Telegram.BotToken != "" {
		out.Alerting.Telegram.BotToken = "xxxxx"
	}
	if c.Database.DSN != "" {
		if u, err := url.Parse(c.Database.DSN); err == nil && u.User != nil {
			out.Database.DSN = u.Redacted()
		}
	}
	weights := make(map[string]float64, len(c.Models.EnsembleWeights))
	for k, w := range c.Models.EnsembleWeights {
		weights[k] = w
	}
	out.Models.EnsembleWeights = weights
	out.Features.TechnicalIndicators = append([]string(nil), c.Features.TechnicalIndicators...)
	return out
}
