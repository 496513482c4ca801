package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestHookForPointsAtNotify(t *testing.T) {
	m := HookFor("http://10.0.0.2:8079/")
	assert.Equal(t, DefaultMatcher, m.Matcher)
	require.Len(t, m.Hooks, 1)
	assert.Equal(t, "prompt", m.Hooks[0].Type)
	assert.Contains(t, m.Hooks[0].Prompt, "POST http://10.0.0.2:8079/notify ")
	assert.Contains(t, m.Hooks[0].Prompt, `"category":"question"`)
}

func TestInstallCreatesMissingSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude", "settings.json")

	res, err := Install(path, "http://relay:8079", fixedNow)
	require.NoError(t, err)
	assert.Empty(t, res.BackupPath)
	assert.False(t, res.Replaced)

	got := readJSON(t, path)
	hooks, ok := got["hooks"].([]any)
	require.True(t, ok)
	require.Len(t, hooks, 1)
	assert.Equal(t, DefaultMatcher, hooks[0].(map[string]any)["matcher"])
}

func TestInstallBacksUpAndKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	orig := `{
  // user settings
  "model": "big",
  "permissions": {"allow": ["Bash(ls)"]},
  "hooks": [
    {"matcher": "Bash", "hooks": [{"type": "command", "command": "echo hi"}]},
  ],
}`
	require.NoError(t, os.WriteFile(path, []byte(orig), 0o644))

	res, err := Install(path, "http://relay:8079", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, path+".backup.2025-03-04T05-06-07-008Z", res.BackupPath)
	backup, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, orig, string(backup))

	got := readJSON(t, path)
	assert.Equal(t, "big", got["model"])
	assert.Equal(t, map[string]any{"allow": []any{"Bash(ls)"}}, got["permissions"])
	hooks := got["hooks"].([]any)
	require.Len(t, hooks, 2)
	first := hooks[0].(map[string]any)
	assert.Equal(t, "Bash", first["matcher"])
	assert.Equal(t, "echo hi", first["hooks"].([]any)[0].(map[string]any)["command"])
	assert.Equal(t, DefaultMatcher, hooks[1].(map[string]any)["matcher"])
}

func TestInstallReplacesExistingMatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hooks":[
		{"matcher":"AskUserQuestion","hooks":[{"type":"prompt","prompt":"POST http://old:1/notify"}]},
		{"matcher":"Bash","hooks":[]}
	]}`), 0o600))

	res, err := Install(path, "http://new:8079", fixedNow)
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.NotEmpty(t, res.BackupPath)

	hooks := readJSON(t, path)["hooks"].([]any)
	require.Len(t, hooks, 2)
	ask := hooks[0].(map[string]any)
	assert.Equal(t, DefaultMatcher, ask["matcher"])
	prompt := ask["hooks"].([]any)[0].(map[string]any)["prompt"].(string)
	assert.Contains(t, prompt, "http://new:8079/notify")
	assert.NotContains(t, prompt, "old:1")
	assert.Equal(t, "Bash", hooks[1].(map[string]any)["matcher"])

	// Installing twice does not duplicate the matcher.
	_, err = Install(path, "http://new:8079", fixedNow.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, readJSON(t, path)["hooks"].([]any), 2)
}

func TestMergeEventObjectForm(t *testing.T) {
	s := Settings{"hooks": json.RawMessage(`{"Stop":[{"matcher":"","hooks":[]}],"PreToolUse":[{"matcher":"Edit","hooks":[]}]}`)}

	replaced, err := Merge(s, HookFor("http://relay"))
	require.NoError(t, err)
	assert.False(t, replaced)

	var events map[string][]map[string]any
	require.NoError(t, json.Unmarshal(s["hooks"], &events))
	assert.Len(t, events["Stop"], 1)
	require.Len(t, events[HookEvent], 2)
	assert.Equal(t, DefaultMatcher, events[HookEvent][1]["matcher"])

	replaced, err = Merge(s, HookFor("http://relay2"))
	require.NoError(t, err)
	assert.True(t, replaced)
}

func TestMergeRejectsOddHooks(t *testing.T) {
	_, err := Merge(Settings{"hooks": json.RawMessage(`"nope"`)}, HookFor("http://relay"))
	assert.ErrorIs(t, err, ErrHooksShape)
}

func TestInstallLeavesBrokenSettingsAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hooks": [`), 0o600))

	_, err := Install(path, "http://relay", fixedNow)
	require.Error(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"hooks": [`, string(b))
}
