package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "api.developer.atomberg-iot.com", cfg.CloudCfg.Host)
	assert.Equal(t, 30*time.Second, cfg.CloudCfg.Timeout)
	assert.Equal(t, 5625, cfg.UDPCfg.Port)
	assert.Equal(t, "fanbridge", cfg.MqttCfg.TopicPrefix)
	assert.Equal(t, "127.0.0.1:8553", cfg.FeedCfg.Addr)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLOUD_HOST", "api.atomberg-iot.com")
	t.Setenv("UDP_PORT", "6001")
	t.Setenv("CLOUD_TIMEOUT", "10s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "api.atomberg-iot.com", cfg.CloudCfg.Host)
	assert.Equal(t, 6001, cfg.UDPCfg.Port)
	assert.Equal(t, 10*time.Second, cfg.CloudCfg.Timeout)
}
