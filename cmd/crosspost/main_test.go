package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/webhook"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignReadsStdin(t *testing.T) {
	t.Parallel()
	body := `{"type":"page.created"}`
	out, err := execute(t, body, "sign", "--secret", "s3cret", "--env-file", "")
	require.NoError(t, err)
	assert.Equal(t, webhook.SignatureHeader+": "+webhook.Sign("s3cret", []byte(body))+"\n", out)
}

func TestSignUsesConfiguredSecret(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  webhook_secret: from-config\n"), 0o600))
	bodyPath := filepath.Join(dir, "body.json")
	require.NoError(t, os.WriteFile(bodyPath, []byte(`{}`), 0o600))

	out, err := execute(t, "", "sign", "-c", cfgPath, "-b", bodyPath, "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, webhook.Sign("from-config", []byte(`{}`)))
}

func TestCheckReportsDestinations(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
telegram:
  token: "123:abc"
  chat: "@channel"
scheduler:
  enabled: true
  schedule: "daily:09:00"
  timezone: UTC
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	out, err := execute(t, "", "check", "-c", cfgPath, "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "destinations: telegram")
	assert.Contains(t, out, "scheduler: daily:09:00 (UTC)")
}

func TestCheckRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"scheduler":{"enabled":true,"schedule":"bogus"}}`), 0o600))
	_, err := execute(t, "", "check", "-c", cfgPath, "--env-file", "")
	require.ErrorContains(t, err, "scheduler.schedule")
}
