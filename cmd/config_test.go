package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteresolve/internal/config"
)

func TestWriteConfig(t *testing.T) {
	c := &config.Config{
		BrandSites: "brand_sites.txt",
		Resolve:    config.ResolveConfig{Mode: "last_match"},
		Store:      config.StoreConfig{Driver: "postgres", DatabaseURL: "postgres://user:secret@db/siteresolve"},
		Monitoring: config.MonitoringConfig{WebhookURL: "https://hooks.example.com/T0/B0/xyz"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, c))

	out := buf.String()
	assert.Contains(t, out, "brand_sites: brand_sites.txt")
	assert.Contains(t, out, "mode: last_match")
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "hooks.example.com")

	var back config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "<redacted>", back.Store.DatabaseURL)
	assert.Equal(t, "postgres://user:secret@db/siteresolve", c.Store.DatabaseURL, "input must not be modified")
}

func TestWriteConfig_SQLitePathKept(t *testing.T) {
	c := &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: "siteresolve.db"}}

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, c))
	assert.Contains(t, buf.String(), "database_url: siteresolve.db")
}
