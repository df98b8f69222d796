// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/replay-cli/internal/observability"
)

const snapshotHTML = `<html><body>
<button id="buy" style="left:10px;top:10px;width:100px;height:30px">Buy</button>
</body></html>`

// resetForTest isolates the global logger and keeps it quiet.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Setenv("REPLAY_LOGGER_LEVEL", "fatal")
	t.Cleanup(observability.ResetForTest)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Version(t *testing.T) {
	resetForTest(t)
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "replay-cli version "+Version)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "replay-cli version "+Version+"\n", out)
}

func TestResolveCmd_Passes(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	htmlPath := writeFile(t, dir, "page.html", snapshotHTML)
	steps := writeFile(t, dir, "steps.json", `{"name":"buy","steps":[
		{"id":"s1","type":"click","selectors":[{"locator":"#buy","isActive":true}],
		 "waitingConditions":[{"type":"ELEMENT_IS_VISIBLE","isActive":true},{"type":"ELEMENT_IS_NOT_DISABLED","isActive":true}]}]}`)

	out, err := execute(t, "resolve", "--html", htmlPath, "--steps", steps, "--timeout", "1s", "--sleep", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "passed"`)
	assert.Contains(t, out, `"name": "buy"`)
}

func TestResolveCmd_HardFailure(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	htmlPath := writeFile(t, dir, "page.html", snapshotHTML)
	steps := writeFile(t, dir, "steps.json", `[{"id":"s1","type":"click","selectors":[{"locator":"#checkout"}],
		"waitingConditions":[{"type":"ELEMENT_IS_VISIBLE","isActive":true}]}]`)
	report := filepath.Join(dir, "report.txt")

	_, err := execute(t, "resolve", "--html", htmlPath, "--steps", steps,
		"--timeout", "100ms", "--sleep", "10ms", "--format", "text", "--output", report)
	assert.ErrorIs(t, err, ErrStepsFailed)

	data, readErr := os.ReadFile(report)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "not-found")
	assert.Contains(t, string(data), "no candidate locator matched: #checkout")
}

func TestResolveCmd_WatchMode(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	htmlPath := writeFile(t, dir, "page.html", snapshotHTML)
	steps := writeFile(t, dir, "steps.json", `[{"id":"s1","type":"click","selectors":[{"locator":"#buy"}]}]`)

	out, err := execute(t, "resolve", "--html", htmlPath, "--steps", steps, "--mode", "watch", "--timeout", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, `"mode": "watch"`)
}

func TestResolveCmd_Errors(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	htmlPath := writeFile(t, dir, "page.html", snapshotHTML)
	steps := writeFile(t, dir, "steps.json", `[{"id":"s1","type":"click","selectors":[{"locator":"#buy"}]}]`)

	cases := map[string]struct {
		args []string
		msg  string
	}{
		"missing flags":   {[]string{"resolve"}, `required flag(s) "html", "steps" not set`},
		"bad format":      {[]string{"resolve", "--html", htmlPath, "--steps", steps, "--format", "sarif"}, "unsupported output format: sarif"},
		"bad mode":        {[]string{"resolve", "--html", htmlPath, "--steps", steps, "--mode", "eager"}, `mode must be "poll" or "watch"`},
		"missing steps":   {[]string{"resolve", "--html", htmlPath, "--steps", filepath.Join(dir, "none.json")}, "failed to open recording"},
		"missing html":    {[]string{"resolve", "--html", filepath.Join(dir, "none.html"), "--steps", steps}, "failed to open snapshot"},
		"missing config":  {[]string{"--config", filepath.Join(dir, "none.yaml"), "resolve", "--html", htmlPath, "--steps", steps}, "error reading config file"},
		"run without url": {[]string{"run", "--steps", steps}, "no start URL"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestConfigFile(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	htmlPath := writeFile(t, dir, "page.html", snapshotHTML)
	steps := writeFile(t, dir, "steps.json", `[{"id":"s1","type":"click","selectors":[{"locator":"#buy"}]}]`)
	cfgPath := writeFile(t, dir, "config.yaml", "replay:\n  run_timeout: 2s\n  soft_condition_fraction: 1.5\n")

	_, err := execute(t, "--config", cfgPath, "resolve", "--html", htmlPath, "--steps", steps)
	assert.ErrorContains(t, err, "soft_condition_fraction must be strictly between 0.0 and 1.0")
}
