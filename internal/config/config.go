package config

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/quantdesk/tradeterm/pkg/secrets"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Polling    PollingConfig    `mapstructure:"polling"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GCP        GCPConfig        `mapstructure:"gcp"`
}

type GatewayConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ClientID       int    `mapstructure:"client_id"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	AutoReconnect  bool   `mapstructure:"auto_reconnect"`
}

type PollingConfig struct {
	Interval int      `mapstructure:"interval"`
	Symbols  []string `mapstructure:"symbols"`
}

type MarketDataConfig struct {
	ProviderURL    string  `mapstructure:"provider_url"`
	ProviderAPIKey string  `mapstructure:"provider_api_key"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	MaxQuoteAge    int     `mapstructure:"max_quote_age"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	AuthSecret string `mapstructure:"auth_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tradeterm")
	}

	v.SetEnvPrefix("TRADETERM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		if err := loadSecretsFromGCP(context.Background(), &config, logrus.New()); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Gateway defaults match the stock TWS paper-trading setup.
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 7496)
	v.SetDefault("gateway.client_id", 1)
	v.SetDefault("gateway.connect_timeout", 20)
	v.SetDefault("gateway.auto_reconnect", true)

	v.SetDefault("polling.interval", 1)
	v.SetDefault("polling.symbols", []string{
		"AAPL", "MSFT", "GOOGL", "TSLA", "AMZN", "NVDA", "META", "SPY", "QQQ", "AMD",
	})

	v.SetDefault("marketdata.provider_url", "https://data.tradeterm.dev")
	v.SetDefault("marketdata.requests_per_sec", 5.0)
	v.SetDefault("marketdata.max_quote_age", 30)

	v.SetDefault("ledger.path", "./data/trade_history.json")

	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	names := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.provider_api_key", names.ProviderAPIKey)
	v.SetDefault("gcp.secret_names.server_auth_secret", names.ServerAuthSecret)
}

func overrideFromEnv(config *Config) {
	if host := os.Getenv("TWS_HOST"); host != "" {
		config.Gateway.Host = host
	}
	if port := os.Getenv("TWS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Gateway.Port = p
		}
	}
	if clientID := os.Getenv("TWS_CLIENT_ID"); clientID != "" {
		if id, err := strconv.Atoi(clientID); err == nil {
			config.Gateway.ClientID = id
		}
	}
	if key := os.Getenv("MARKETDATA_API_KEY"); key != "" {
		config.MarketData.ProviderAPIKey = key
	}
	if secret := os.Getenv("SERVER_AUTH_SECRET"); secret != "" {
		config.Server.AuthSecret = secret
	}
	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	manager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer manager.Close()

	// Only load secrets that are not already set.
	if config.MarketData.ProviderAPIKey == "" {
		config.MarketData.ProviderAPIKey = manager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.ProviderAPIKey, "")
	}
	if config.Server.AuthSecret == "" {
		config.Server.AuthSecret = manager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.ServerAuthSecret, "")
	}

	logger.Info("Loaded secrets from GCP Secret Manager")
	return nil
}
