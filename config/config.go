package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"zcash-near-intents/pkg/engine"
	"zcash-near-intents/pkg/intent"
	"zcash-near-intents/pkg/portfolio"
	"zcash-near-intents/pkg/types"
	"zcash-near-intents/pkg/zcash"
)

const (
	ConfigName = ".zcash-near-intents"
	EnvPrefix  = "ZNI"

	NonceMemory = "memory"
	NonceRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	Account   AccountConfig     `mapstructure:"account"`
	Relay     RelayConfig       `mapstructure:"relay"`
	OneClick  OneClickConfig    `mapstructure:"oneclick"`
	Near      NearConfig        `mapstructure:"near"`
	Zcash     ZcashConfig       `mapstructure:"zcash"`
	Privacy   PrivacyConfig     `mapstructure:"privacy"`
	Swap      SwapConfig        `mapstructure:"swap"`
	Portfolio PortfolioConfig   `mapstructure:"portfolio"`
	Nonce     NonceConfig       `mapstructure:"nonce"`
	Store     StoreConfig       `mapstructure:"store"`
	Log       LogConfig         `mapstructure:"log"`
	Assets    []types.AssetInfo `mapstructure:"assets"`
}

// AccountConfig locates the NEAR signing credentials. A credentials file wins over inline keys.
type AccountConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	ID              string `mapstructure:"id"`
	PrivateKey      string `mapstructure:"private_key"`
}

type RelayConfig struct {
	URL string `mapstructure:"url"`
}

type OneClickConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	JWTToken string `mapstructure:"jwt_token"`
}

type NearConfig struct {
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ZcashConfig struct {
	CLIPath         string   `mapstructure:"cli_path"`
	CLIArgs         []string `mapstructure:"cli_args"`
	ShieldedAddress string   `mapstructure:"shielded_address"`
	ShieldFee       string   `mapstructure:"shield_fee"`
}

type PrivacyConfig struct {
	DefaultLevel string `mapstructure:"default_level"`
	AutoShield   bool   `mapstructure:"auto_shield"`
	IncludeMemo  bool   `mapstructure:"include_memo"`
	ViewingKey   string `mapstructure:"viewing_key"`
}

type SwapConfig struct {
	SlippageTolerance    string        `mapstructure:"slippage_tolerance"`
	SettlementWindow     time.Duration `mapstructure:"settlement_window"`
	QuoteTimeout         time.Duration `mapstructure:"quote_timeout"`
	SettlementTimeout    time.Duration `mapstructure:"settlement_timeout"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxSubmitRetries     int           `mapstructure:"max_submit_retries"`
	MaxQuoteRetries      int           `mapstructure:"max_quote_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	ShieldRetries        int           `mapstructure:"shield_retries"`
	WaitForSettlement    bool          `mapstructure:"wait_for_settlement"`
}

type PortfolioConfig struct {
	Staleness          time.Duration `mapstructure:"staleness"`
	ReconcileTolerance string        `mapstructure:"reconcile_tolerance"`
	RefreshDelay       time.Duration `mapstructure:"refresh_delay"`
	RefreshTimeout     time.Duration `mapstructure:"refresh_timeout"`
	Workers            int           `mapstructure:"workers"`
}

type NonceConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account.credentials_file", "")
	v.SetDefault("account.id", "")
	v.SetDefault("account.private_key", "")

	v.SetDefault("relay.url", "https://solver-relay-v2.chaindefuser.com/rpc")
	v.SetDefault("oneclick.base_url", "https://1click.chaindefuser.com")
	v.SetDefault("oneclick.jwt_token", "")
	v.SetDefault("near.rpc_url", "https://rpc.mainnet.near.org")
	v.SetDefault("near.timeout", 10*time.Second)

	v.SetDefault("zcash.cli_path", "zcash-cli")
	v.SetDefault("zcash.cli_args", []string{})
	v.SetDefault("zcash.shielded_address", "")
	v.SetDefault("zcash.shield_fee", zcash.DefaultFee.String())

	v.SetDefault("privacy.default_level", string(types.Shielded))
	v.SetDefault("privacy.auto_shield", true)
	v.SetDefault("privacy.include_memo", true)
	v.SetDefault("privacy.viewing_key", "")

	def := engine.DefaultConfig()
	v.SetDefault("swap.slippage_tolerance", intent.DefaultSlippage)
	v.SetDefault("swap.settlement_window", intent.DefaultSettlementWindow)
	v.SetDefault("swap.quote_timeout", def.QuoteTimeout)
	v.SetDefault("swap.settlement_timeout", def.SettlementTimeout)
	v.SetDefault("swap.poll_interval", def.PollInterval)
	v.SetDefault("swap.max_submit_retries", def.MaxSubmitRetries)
	v.SetDefault("swap.max_quote_retries", def.MaxQuoteRetries)
	v.SetDefault("swap.retry_initial_interval", def.RetryInitialInterval)
	v.SetDefault("swap.retry_max_interval", def.RetryMaxInterval)
	v.SetDefault("swap.shield_retries", def.ShieldRetries)
	v.SetDefault("swap.wait_for_settlement", def.WaitForSettlement)

	v.SetDefault("portfolio.staleness", 2*time.Minute)
	v.SetDefault("portfolio.reconcile_tolerance", "0.01")
	v.SetDefault("portfolio.refresh_delay", 5*time.Second)
	v.SetDefault("portfolio.refresh_timeout", 10*time.Second)
	v.SetDefault("portfolio.workers", 4)

	v.SetDefault("nonce.backend", NonceMemory)
	v.SetDefault("nonce.redis_addr", "localhost:6379")
	v.SetDefault("nonce.redis_password", "")
	v.SetDefault("nonce.redis_db", 0)

	v.SetDefault("store.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from the given file, or from .zcash-near-intents.yaml in $HOME
// or the working directory when path is empty. ZNI_* environment variables override both
// (ZNI_SWAP_SLIPPAGE_TOLERANCE for swap.slippage_tolerance).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges
func (c *Config) Validate() error {
	if _, err := types.ParsePrivacy(c.Privacy.DefaultLevel); err != nil {
		return errors.Wrap(err, "privacy.default_level")
	}

	slip, err := c.Slippage()
	if err != nil {
		return err
	}
	if slip.IsNegative() || slip.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("swap.slippage_tolerance must be in [0, 1), got %s", slip)
	}

	tol, err := c.ReconcileTolerance()
	if err != nil {
		return err
	}
	if tol.IsNegative() {
		return fmt.Errorf("portfolio.reconcile_tolerance must not be negative, got %s", tol)
	}

	if _, err := c.ShieldFee(); err != nil {
		return err
	}

	durations := map[string]time.Duration{
		"swap.settlement_window":      c.Swap.SettlementWindow,
		"swap.quote_timeout":          c.Swap.QuoteTimeout,
		"swap.settlement_timeout":     c.Swap.SettlementTimeout,
		"swap.poll_interval":          c.Swap.PollInterval,
		"swap.retry_initial_interval": c.Swap.RetryInitialInterval,
		"swap.retry_max_interval":     c.Swap.RetryMaxInterval,
		"portfolio.staleness":         c.Portfolio.Staleness,
		"portfolio.refresh_delay":     c.Portfolio.RefreshDelay,
		"portfolio.refresh_timeout":   c.Portfolio.RefreshTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	counts := map[string]int{
		"swap.max_submit_retries": c.Swap.MaxSubmitRetries,
		"swap.max_quote_retries":  c.Swap.MaxQuoteRetries,
		"swap.shield_retries":     c.Swap.ShieldRetries,
	}
	for key, n := range counts {
		if n < 0 {
			return fmt.Errorf("%s must not be negative, got %d", key, n)
		}
	}
	if c.Portfolio.Workers <= 0 {
		return fmt.Errorf("portfolio.workers must be positive, got %d", c.Portfolio.Workers)
	}

	switch c.Nonce.Backend {
	case NonceMemory, NonceRedis:
	default:
		return fmt.Errorf("nonce.backend must be %q or %q, got %q", NonceMemory, NonceRedis, c.Nonce.Backend)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(c.Assets) > 0 {
		if _, err := types.NewRegistry(c.Assets); err != nil {
			return errors.Wrap(err, "assets")
		}
	}
	return nil
}

// Slippage returns swap.slippage_tolerance as a decimal
func (c *Config) Slippage() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Swap.SlippageTolerance))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "swap.slippage_tolerance %q", c.Swap.SlippageTolerance)
	}
	return d, nil
}

// ReconcileTolerance returns portfolio.reconcile_tolerance as a decimal
func (c *Config) ReconcileTolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Portfolio.ReconcileTolerance))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "portfolio.reconcile_tolerance %q", c.Portfolio.ReconcileTolerance)
	}
	return d, nil
}

// ShieldFee returns zcash.shield_fee as a decimal
func (c *Config) ShieldFee() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Zcash.ShieldFee))
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("zcash.shield_fee must be a non-negative amount, got %q", c.Zcash.ShieldFee)
	}
	return d, nil
}

// DefaultPrivacy returns privacy.default_level
func (c *Config) DefaultPrivacy() types.PrivacyClass {
	p, err := types.ParsePrivacy(c.Privacy.DefaultLevel)
	if err != nil {
		return types.Shielded
	}
	return p
}

// Registry builds the asset registry, using the assets list when one is configured
func (c *Config) Registry() (*types.Registry, error) {
	if len(c.Assets) > 0 {
		return types.NewRegistry(c.Assets)
	}
	return types.NewRegistry(types.DefaultAssets())
}

// BuilderConfig returns the intent builder options
func (c *Config) BuilderConfig() (intent.BuilderConfig, error) {
	slip, err := c.Slippage()
	if err != nil {
		return intent.BuilderConfig{}, err
	}
	return intent.BuilderConfig{
		Slippage:         slip,
		SettlementWindow: c.Swap.SettlementWindow,
		IncludeMemo:      c.Privacy.IncludeMemo,
		ViewingKey:       c.Privacy.ViewingKey,
	}, nil
}

// EngineConfig returns the swap engine options
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		QuoteTimeout:         c.Swap.QuoteTimeout,
		SettlementTimeout:    c.Swap.SettlementTimeout,
		PollInterval:         c.Swap.PollInterval,
		MaxQuoteRetries:      c.Swap.MaxQuoteRetries,
		MaxSubmitRetries:     c.Swap.MaxSubmitRetries,
		ShieldRetries:        c.Swap.ShieldRetries,
		RetryInitialInterval: c.Swap.RetryInitialInterval,
		RetryMaxInterval:     c.Swap.RetryMaxInterval,
		WaitForSettlement:    c.Swap.WaitForSettlement,
		AutoShield:           c.Privacy.AutoShield,
	}
}

// TrackerConfig returns the portfolio tracker options for account
func (c *Config) TrackerConfig(account string, pairs []types.Asset) (portfolio.Config, error) {
	tol, err := c.ReconcileTolerance()
	if err != nil {
		return portfolio.Config{}, err
	}
	return portfolio.Config{
		Account:        account,
		Pairs:          pairs,
		Staleness:      c.Portfolio.Staleness,
		Tolerance:      tol,
		RefreshDelay:   c.Portfolio.RefreshDelay,
		RefreshTimeout: c.Portfolio.RefreshTimeout,
		Workers:        c.Portfolio.Workers,
	}, nil
}

// WalletConfig returns the zcash wallet options
func (c *Config) WalletConfig() (zcash.Config, error) {
	fee, err := c.ShieldFee()
	if err != nil {
		return zcash.Config{}, err
	}
	return zcash.Config{
		CLIPath:         c.Zcash.CLIPath,
		CLIArgs:         c.Zcash.CLIArgs,
		ShieldedAddress: c.Zcash.ShieldedAddress,
		Fee:             fee,
		PollInterval:    c.Swap.PollInterval,
	}, nil
}

// RedisNonceConfig returns the redis nonce allocator options
func (c *Config) RedisNonceConfig() intent.RedisNonceConfig {
	return intent.RedisNonceConfig{
		Address:  c.Nonce.RedisAddr,
		Password: c.Nonce.RedisPassword,
		DB:       c.Nonce.RedisDB,
	}
}

// NewLogger builds the application logger from log.level and log.format
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
