package vsphere

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.False(t, cfg.DisableCache)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.Host = "" }, "host is required"},
		{"missing username", func(c *Config) { c.Username = "" }, "username is required"},
		{"missing password", func(c *Config) { c.Password = "" }, "password is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Host = "vcenter.example.com"
			cfg.Username = "root"
			cfg.Password = "secret"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewBuildsEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "vcenter.example.com"
	cfg.Username = "root"
	cfg.Password = "secret"

	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://vcenter.example.com:443/sdk/vimService", c.Core().Endpoint())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewCacheSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "vcenter.example.com"
	cfg.Username = "root"
	cfg.Password = "secret"

	c, err := New(cfg)
	require.NoError(t, err)
	_, isMap := c.cache.(*MapCache)
	assert.True(t, isMap, "default cache should be a MapCache")

	cfg.DisableCache = true
	c, err = New(cfg)
	require.NoError(t, err)
	_, isNop := c.cache.(NopCache)
	assert.True(t, isNop, "DisableCache should select NopCache")
}
