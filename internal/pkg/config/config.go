package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	CloudCfg *CloudConfig
	UDPCfg   *UDPConfig
	MqttCfg  *MqttConfig
	FeedCfg  *FeedConfig

	DatabaseURL      string
	MigrationsFolder string
	RefreshSchedule  string
	Debounce         time.Duration
	LogLevel         string
}

type CloudConfig struct {
	Host    string        `env:"CLOUD_HOST" envDefault:"api.developer.atomberg-iot.com"`
	Timeout time.Duration `env:"CLOUD_TIMEOUT" envDefault:"30s"`
}

type UDPConfig struct {
	Port int `env:"UDP_PORT" envDefault:"5625"`
}

type MqttConfig struct {
	Host        string `env:"MQTT_HOST"`
	Username    string `env:"MQTT_USER"`
	Password    string `env:"MQTT_PASS"`
	TopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"fanbridge"`
}

type FeedConfig struct {
	Addr string `env:"FEED_ADDR" envDefault:"127.0.0.1:8553"`
}

// FromEnv fills the nested sections from the environment. Flag values set in
// main take precedence and are applied on top by the command layer.
func FromEnv() (*Config, error) {
	cfg := &Config{
		CloudCfg: &CloudConfig{},
		UDPCfg:   &UDPConfig{},
		MqttCfg:  &MqttConfig{},
		FeedCfg:  &FeedConfig{},
	}
	for _, section := range []any{cfg.CloudCfg, cfg.UDPCfg, cfg.MqttCfg, cfg.FeedCfg} {
		if err := env.Parse(section); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
