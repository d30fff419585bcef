package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	HTTP struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`
	Monitor struct {
		IntervalSeconds  int     `mapstructure:"interval_seconds"`
		WarningThreshold float64 `mapstructure:"warning_threshold"`
		Workers          int     `mapstructure:"workers"`
	} `mapstructure:"monitor"`
	Escalation struct {
		AdminRole string            `mapstructure:"admin_role"`
		Chain     map[string]string `mapstructure:"chain"`
	} `mapstructure:"escalation"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("http.port", "8080")
	viper.SetDefault("monitor.interval_seconds", 60)
	viper.SetDefault("monitor.warning_threshold", 80)
	viper.SetDefault("monitor.workers", 4)
	viper.SetDefault("escalation.admin_role", "administrator")

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus env vars are a valid configuration on their own.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ConnString renders the libpq connection URL for the configured database.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}
