package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ReadJSONC decodes a JSON file that may carry comments and trailing commas.
// Unlike the persisted records it is lenient about unknown fields, so it
// suits files owned by other programs. found is false when the file does
// not exist; an empty file decodes to nothing.
func ReadJSONC(path string, v any) (found bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	b = bytes.TrimSpace(jsonc.ToJSON(b))
	if len(b) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("%s: %w", path, err)
	}
	return true, nil
}

// WriteJSONAtomic writes v as indented JSON through a temp file and rename,
// creating the parent directory when needed.
func WriteJSONAtomic(path string, v any, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	jb, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, append(jb, '\n'), perm)
}
