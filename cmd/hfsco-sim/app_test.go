package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-hfsco/config"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"wideband eSCO", func(*config.Config) {}},
		{"eSCO failure falls back to SCO", func(c *config.Config) { c.Sim.FailESCO = true }},
		{"legacy peer", func(c *config.Config) { c.Peer.Version = "1.0"; c.Peer.Codec = "cvsd" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Log.Level = "error"
			cfg.Sim.Latency = time.Millisecond
			tt.mutate(&cfg)
			require.NoError(t, cfg.Validate())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			assert.NoError(t, run(ctx, &cfg))
		})
	}
}

func TestApp_InvalidFlag(t *testing.T) {
	app := newApp()
	app.ExitErrHandler = nil

	err := app.Run([]string{serviceName, "--session.max", "0"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
