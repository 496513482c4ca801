// Package agent wires a coding agent's hook settings to a relay.
//
// The agent keeps its configuration in a JSON settings file. Installing
// merges one hook matcher into that file which asks the agent to POST a
// notification to <relay>/notify before it waits on the user. Keys this
// package does not know about are carried through untouched.
package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"notifyrelay/internal/config"
)

const (
	// DefaultMatcher is the tool the hook fires for: the agent asking the
	// user a question.
	DefaultMatcher = "AskUserQuestion"
	// HookEvent is the event key used when the settings file groups hooks
	// by event rather than as a flat list.
	HookEvent = "PreToolUse"

	hooksKey = "hooks"
)

// ErrHooksShape is returned when "hooks" is neither a list nor an object.
var ErrHooksShape = errors.New(`settings "hooks" is neither a list nor an object`)

// DefaultSettingsPath is where the agent keeps its user settings.
func DefaultSettingsPath(home string) string {
	return filepath.Join(home, ".claude", "settings.json")
}

type Hook struct {
	Type          string `json:"type"`
	Prompt        string `json:"prompt"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

type Matcher struct {
	Matcher string `json:"matcher"`
	Hooks   []Hook `json:"hooks"`
}

// HookFor builds the matcher that points the agent at relayURL.
func HookFor(relayURL string) Matcher {
	endpoint := strings.TrimRight(relayURL, "/") + "/notify"
	prompt := "Before asking the user a question, send a notification to the relay. " +
		"POST " + endpoint + " with header Content-Type: application/json and body " +
		`{"title":"<project name, the last element of the working directory>",` +
		`"message":"<one line summary of the question>",` +
		`"category":"question",` +
		`"cwd":"<last element of the working directory>"}. ` +
		`Example: in /home/user/my-project use title "my-project" and cwd "my-project". ` +
		"Send it immediately before asking; do not skip it."
	return Matcher{
		Matcher: DefaultMatcher,
		Hooks: []Hook{{
			Type:          "prompt",
			Prompt:        prompt,
			StatusMessage: "Notifying the user...",
		}},
	}
}

// Settings is the agent's settings file as raw top-level values.
type Settings map[string]json.RawMessage

// ReadSettings loads path. A missing file yields empty settings.
func ReadSettings(path string) (Settings, error) {
	s := Settings{}
	if _, err := config.ReadJSONC(path, &s); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if s == nil {
		s = Settings{}
	}
	return s, nil
}

// WriteSettings replaces path atomically. Top-level keys come out sorted.
func WriteSettings(path string, s Settings) error {
	return config.WriteJSONAtomic(path, s, 0o600)
}

// Backup copies path next to itself with a timestamp suffix and returns
// the copy's path. It returns "" when there is nothing to back up.
func Backup(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("backup settings: %w", err)
	}
	perm := fs.FileMode(0o600)
	if st, err := os.Stat(path); err == nil {
		perm = st.Mode().Perm()
	}
	stamp := strings.ReplaceAll(now.UTC().Format("2006-01-02T15-04-05.000Z"), ".", "-")
	dst := path + ".backup." + stamp
	if err := os.WriteFile(dst, data, perm); err != nil {
		return "", fmt.Errorf("backup settings: %w", err)
	}
	return dst, nil
}

// Merge puts m into s. A matcher with the same name is replaced in place;
// otherwise m is appended. Both the flat list form and the per-event
// object form of "hooks" are understood; a missing "hooks" starts a list.
func Merge(s Settings, m Matcher) (replaced bool, err error) {
	raw := bytes.TrimSpace(s[hooksKey])
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		raw = []byte("[]")
		fallthrough
	case raw[0] == '[':
		out, replaced, err := mergeList(raw, m)
		if err != nil {
			return false, err
		}
		s[hooksKey] = out
		return replaced, nil
	case raw[0] == '{':
		var events map[string]json.RawMessage
		if err := json.Unmarshal(raw, &events); err != nil {
			return false, fmt.Errorf("settings hooks: %w", err)
		}
		list := events[HookEvent]
		if len(bytes.TrimSpace(list)) == 0 || bytes.Equal(bytes.TrimSpace(list), []byte("null")) {
			list = []byte("[]")
		}
		out, replaced, err := mergeList(list, m)
		if err != nil {
			return false, err
		}
		events[HookEvent] = out
		if s[hooksKey], err = json.Marshal(events); err != nil {
			return false, err
		}
		return replaced, nil
	default:
		return false, ErrHooksShape
	}
}

func mergeList(raw json.RawMessage, m Matcher) (json.RawMessage, bool, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("settings hooks: %w", err)
	}
	enc, err := json.Marshal(m)
	if err != nil {
		return nil, false, err
	}
	replaced := false
	for i, it := range items {
		var head struct {
			Matcher string `json:"matcher"`
		}
		if json.Unmarshal(it, &head) == nil && head.Matcher == m.Matcher {
			items[i] = enc
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, enc)
	}
	out, err := json.Marshal(items)
	return out, replaced, err
}

// Result describes what Install did.
type Result struct {
	SettingsPath string
	BackupPath   string // empty when the file did not exist
	Replaced     bool   // an existing matcher was overwritten
}

// Install backs up the settings file at path, merges the relay hook for
// relayURL and writes the file back.
func Install(path, relayURL string, now time.Time) (Result, error) {
	res := Result{SettingsPath: path}
	backup, err := Backup(path, now)
	if err != nil {
		return res, err
	}
	res.BackupPath = backup

	s, err := ReadSettings(path)
	if err != nil {
		return res, err
	}
	if res.Replaced, err = Merge(s, HookFor(relayURL)); err != nil {
		return res, err
	}
	if err := WriteSettings(path, s); err != nil {
		return res, err
	}
	return res, nil
}
