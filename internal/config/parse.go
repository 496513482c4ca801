package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// decodeStrict turns raw file bytes into v. JSON files may carry comments
// and trailing commas; YAML files are coerced to JSON first. Unknown fields
// and trailing documents are rejected.
func decodeStrict(path string, data []byte, v any) error {
	jb, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return err
	}
	if format == "json" {
		jb = jsonc.ToJSON(jb)
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %w", format, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("%s: trailing data", format)
		}
		return fmt.Errorf("%s: %w", format, err)
	}
	return nil
}

// DurationOrDefault parses a Go duration string found at field. Empty or
// zero values yield def; negative values are rejected.
func DurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
