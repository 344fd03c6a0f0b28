package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemoEndToEnd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"delegacyctl", "demo"}, &stdout, &stderr)
	assert.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "verify_chain: true")
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"delegacyctl", "bogus"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"delegacyctl", "help"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "delegacyctl <command>")
}

const loadPolicyManifest = `
name: standard
epoch_duration: 86400
tiers:
  - min_authority: "10000000000000000000"
    spend_cap: "100000000"
    can_sub_delegate: false
    whitelist: []
  - min_authority: "100000000000000000000"
    spend_cap: "1000000000"
    can_sub_delegate: true
    whitelist: []
`

func TestRunLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(loadPolicyManifest), 0o644))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"delegacyctl", "load-policy", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "registered policy")
	assert.Contains(t, stdout.String(), "standard")
}

func TestRunLoadPolicyMissingArg(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"delegacyctl", "load-policy"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "usage: delegacyctl load-policy")
}
