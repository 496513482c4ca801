package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxBodyBytes caps the size of a notify body.
const MaxBodyBytes = 1 << 20

// wireRequest is the union of the canonical payload and the deprecated one
// (cwd + project + type + timestamp + action) older hooks still send.
type wireRequest struct {
	Request

	Type      string `json:"type,omitempty"`
	Project   string `json:"project,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Action    string `json:"action,omitempty"`
}

// Decode reads one JSON notify body.
//
// The canonical shape keys the category as "category". The deprecated shape
// uses "type" and may carry project/timestamp/action; those are accepted but
// only mapped where the canonical field is absent:
//   - type    -> category
//   - project -> cwd (basename)
//
// timestamp and action are ignored. legacy reports whether any deprecated
// key was seen so callers can log a deprecation warning.
func Decode(r io.Reader) (req Request, legacy bool, err error) {
	dec := json.NewDecoder(io.LimitReader(r, MaxBodyBytes))
	var w wireRequest
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return Request{}, false, &ValidationError{Reason: "empty request body"}
		}
		return Request{}, false, &ValidationError{Reason: fmt.Sprintf("invalid JSON body: %v", err)}
	}

	req = w.Request
	legacy = w.Type != "" || w.Project != "" || w.Timestamp != "" || w.Action != ""

	if req.Category == "" && w.Type != "" {
		req.Category = Category(strings.TrimSpace(w.Type))
	}
	if req.Cwd == "" && strings.TrimSpace(w.Project) != "" {
		req.Cwd = filepath.Base(strings.TrimSpace(w.Project))
	}
	return req, legacy, nil
}
