package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 65537, cfg.PublicExponent)
	assert.Equal(t, 2048, cfg.ModulusBits)
	assert.Equal(t, 2048, cfg.MinModulusBits)
	assert.Equal(t, "Este es el mensaje que quiero firmar digitalmente.", cfg.Message)
	assert.Equal(t, "Este es un mensaje modificado.", cfg.TamperedMessage)
	assert.Equal(t, 30, cfg.PreviewBytes)
	assert.False(t, cfg.Telemetry)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "json logs", mutate: func(c *Config) { c.LogFormat = "JSON" }},
		{name: "zero preview", mutate: func(c *Config) { c.PreviewBytes = 0 }},
		{name: "empty message", mutate: func(c *Config) { c.Message = "" }},
		{
			name:    "identical messages",
			mutate:  func(c *Config) { c.TamperedMessage = c.Message },
			wantErr: true,
		},
		{name: "negative preview", mutate: func(c *Config) { c.PreviewBytes = -1 }, wantErr: true},
		{name: "unknown level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "unknown format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
