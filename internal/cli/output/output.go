// Package output renders command results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	yaml "go.yaml.in/yaml/v3"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid output format %q (valid: table, json, yaml)", s)
}

// TableRenderer is implemented by results that have a tabular form.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// Print writes data in format f. Table output falls back to JSON when data
// is not a TableRenderer.
func Print(w io.Writer, f Format, data any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		if r, ok := data.(TableRenderer); ok {
			PrintTable(w, r)
			return nil
		}
		return Print(w, FormatJSON, data)
	}
	return fmt.Errorf("unknown format: %s", f)
}

func PrintTable(w io.Writer, data TableRenderer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows())
	table.Render()
}

// KeyValues is a two-column "KEY  VALUE" table.
type KeyValues [][2]string

func (kv KeyValues) Headers() []string { return []string{"Field", "Value"} }

func (kv KeyValues) Rows() [][]string {
	out := make([][]string, 0, len(kv))
	for _, p := range kv {
		out = append(out, []string{p[0], p[1]})
	}
	return out
}

// Table is an ad-hoc TableRenderer.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table { return &Table{headers: headers} }

func (t *Table) AddRow(row ...string) { t.rows = append(t.rows, row) }
func (t *Table) Headers() []string    { return t.headers }
func (t *Table) Rows() [][]string     { return t.rows }
