package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"filter", "resolve", "brands", "runs", "serve", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "siteresolve", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "resolutions", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"filter", "input", ""},
		{"filter", "output", ""},
		{"filter", "brands", ""},
		{"filter", "mode", ""},
		{"filter", "concurrency", "0"},
		{"filter", "metrics-file", ""},
		{"filter", "no-store", "false"},
		{"resolve", "name", ""},
		{"resolve", "url", "[]"},
		{"resolve", "candidates", ""},
		{"brands", "match", ""},
		{"serve", "port", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.cmd+"/"+tc.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tc.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tc.flag)
			require.NotNil(t, f, "%s should have --%s", tc.cmd, tc.flag)
			assert.Equal(t, tc.def, f.DefValue)
		})
	}
}
