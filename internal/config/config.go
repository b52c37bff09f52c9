package config

import (
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Server struct {
	Port string `mapstructure:"port"`
}

type Gateway struct {
	Provider  string `mapstructure:"provider"`
	AppID     string `mapstructure:"app-id"`
	AppSecret string `mapstructure:"app-secret"`
	BaseURL   string `mapstructure:"base-url"`
	DoURL     string `mapstructure:"do-url"`
	QueryURL  string `mapstructure:"query-url"`
	WapName   string `mapstructure:"wap-name"`
	TimeoutMs int    `mapstructure:"timeout-ms"`
}

func (g Gateway) NotifyURL() string {
	return g.BaseURL + "/api/payment/notify"
}

func (g Gateway) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentEvents string `mapstructure:"payment-events"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

type Poller struct {
	IntervalMs  int `mapstructure:"interval-ms"`
	MaxAttempts int `mapstructure:"max-attempts"`
}

func (p Poller) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

type Entitlement struct {
	Secret           string `mapstructure:"secret"`
	CookieMaxAgeDays int    `mapstructure:"cookie-max-age-days"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server      Server      `mapstructure:"server"`
	Gateway     Gateway     `mapstructure:"gateway"`
	Kafka       Kafka       `mapstructure:"kafka"`
	Poller      Poller      `mapstructure:"poller"`
	Entitlement Entitlement `mapstructure:"entitlement"`
	Metrics     Metrics     `mapstructure:"metrics"`
	Logs        Logs        `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Credentials never live in the yaml file.
	viper.BindEnv("gateway.app-id", "XUNHU_APPID")
	viper.BindEnv("gateway.app-secret", "XUNHU_APP_SECRET")
	viper.BindEnv("gateway.base-url", "BASE_URL")
	viper.BindEnv("entitlement.secret", "ENTITLEMENT_SECRET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}

func (c *Config) Validate() error {
	if c.Gateway.AppID == "" {
		return errors.New("gateway app id is not configured (XUNHU_APPID)")
	}
	if c.Gateway.AppSecret == "" {
		return errors.New("gateway app secret is not configured (XUNHU_APP_SECRET)")
	}
	if c.Entitlement.Secret == "" {
		return errors.New("entitlement secret is not configured (ENTITLEMENT_SECRET)")
	}
	return nil
}
