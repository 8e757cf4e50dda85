package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestSignatureDefaultsFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
completion:
  model: gpt-test
  temperature: 0.2
  max_tokens: 64
  system_prompt: be brief
`), 0o600))

	out, err := run(t, "--config", path, "signature")
	require.NoError(t, err)
	assert.Equal(t, "gpt-test:temp=0.2:max=64:system=be brief", out)

	out, err = run(t, "--config", path, "signature", "--temperature", "0.9", "--system", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-test:temp=0.9:max=64:system=", out)
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  similarity_threshold: 3\n"), 0o600))

	_, err := run(t, "--config", path, "signature")
	assert.Error(t, err)
}

func TestIndexRejectsMemoryBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: memory\n"), 0o600))

	_, err := run(t, "--config", path, "index", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory backend")

	_, err = run(t, "--config", path, "index")
	assert.Error(t, err)
}
