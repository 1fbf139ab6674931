package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, k := range []string{"BRANDS_JSON", "BRAND_JSON", "OPENAI_API_KEY", "OPENROUTER_API_KEY",
		"BREVO_API_KEY", "SHEETS_WEBHOOK_SECRET", "PORT", "INTAKE_LLM", "INTAKE_LLM_MODEL"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "intake "+version+"\n", out)
}

func TestExtractFromStdin(t *testing.T) {
	isolate(t)
	transcript := "Talebinizi iletiyorum.\n```json\n" +
		`{"handoff":"customer_request","payload":{"contact":{"name":"Ali Veli","phone":"+905551112233"},"request":{"summary":"Boşanma davası"}}}` +
		"\n```"

	out, _, err := execute(t, transcript, "extract")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "admitted", report["stage"])
	assert.Equal(t, "fence", report["source"])
	assert.Equal(t, "Talebinizi iletiyorum.", strings.TrimSpace(report["visible"].(string)))
}

func TestExtractFromFileWithBrand(t *testing.T) {
	dir := isolate(t)
	t.Setenv("BRANDS_JSON", `{"demo":{"label":"Demo Hukuk","contactEmail":"info@demo.com"}}`)

	path := filepath.Join(dir, "turn.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		`<handoff>{"handoff":"customer_request","payload":{"contact":{"name":"Ali Veli","phone":"05551112233","email":"info@demo.com"},"request":{"summary":"Kira artışı"}}}</handoff>`,
	), 0o644))

	out, _, err := execute(t, "", "extract", "--brand", "demo", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"source": "tag"`)

	var report struct {
		Record struct {
			Contact struct {
				Email string `json:"email"`
			} `json:"contact"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Record.Contact.Email)

	_, _, err = execute(t, "", "extract", "--brand", "nope", path)
	assert.ErrorContains(t, err, "unknown brand")
}

func TestConfigMasksSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test-1234567890")
	t.Setenv("BREVO_API_KEY", "xkeysib-abcdefghij")

	out, _, err := execute(t, "", "config", "--db", "/tmp/intake-test.db")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-test-1234567890")
	assert.NotContains(t, out, "xkeysib-abcdefghij")
	assert.Contains(t, out, "sk-t****")

	var cfg struct {
		DBPath struct {
			Value  string `json:"value"`
			Source string `json:"source"`
		} `json:"db_path"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "/tmp/intake-test.db", cfg.DBPath.Value)
	assert.Equal(t, "cli", cfg.DBPath.Source)
}

func TestBadLLMFlag(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "", "config", "--llm", "gemini/pro")
	assert.ErrorContains(t, err, "unknown provider")
}
