package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingCredential(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("llm:\n  provider: googleai\n"), 0o600))

	var stderr bytes.Buffer
	code := realMain(context.Background(), []string{
		"-config", cfgPath,
		"-env-file", filepath.Join(dir, "none.env"),
		"-addr", "127.0.0.1:0",
	}, func(string) string { return "" }, &stderr)

	assert.Equal(t, 1, code)
	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	require.Len(t, lines, 1, "exactly one fatal message")
	assert.Contains(t, lines[0], "GOOGLE_API_KEY not found")
}

func TestBadFlag(t *testing.T) {
	var stderr bytes.Buffer
	code := realMain(context.Background(), []string{"-nope"}, func(string) string { return "" }, &stderr)
	assert.Equal(t, 1, code)
}
