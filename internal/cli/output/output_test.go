package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, " yml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPrintTable(t *testing.T) {
	tbl := NewTable("Action", "Result")
	tbl.AddRow("install", "ok")
	tbl.AddRow("start", "exit status 1")

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, tbl))
	out := buf.String()
	assert.Contains(t, out, "ACTION")
	assert.Contains(t, out, "install")
	assert.Contains(t, out, "exit status 1")
}

func TestPrintKeyValuesAsJSONAndYAML(t *testing.T) {
	data := map[string]any{"running": true, "pid": 42}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatJSON, data))
	assert.JSONEq(t, `{"running":true,"pid":42}`, buf.String())

	buf.Reset()
	require.NoError(t, Print(&buf, FormatYAML, data))
	assert.Contains(t, buf.String(), "running: true")

	buf.Reset()
	require.NoError(t, Print(&buf, FormatTable, KeyValues{{"Label", "com.notifyrelay.master"}}))
	assert.Contains(t, buf.String(), "com.notifyrelay.master")
}
