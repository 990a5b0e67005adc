package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftbox/driftbox/internal/client/config"
)

func TestInitCmdWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cmd := newInitCmd()
	cmd.Flags().StringP("config", "c", path, "")
	cmd.SetArgs([]string{"-d", "/tmp/driftbox-data", "-s", "https://drift.example.com"})
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/driftbox-data", cfg.DataDir)
	assert.Equal(t, "https://drift.example.com", cfg.ServerURL)
}

func TestInitCmdRejectsMissingServer(t *testing.T) {
	cmd := newInitCmd()
	cmd.Flags().StringP("config", "c", filepath.Join(t.TempDir(), "config.json"), "")
	cmd.SetArgs([]string{"-d", "/tmp/driftbox-data"})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	assert.Error(t, cmd.Execute())
}
