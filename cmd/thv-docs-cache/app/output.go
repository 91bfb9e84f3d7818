package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"sigs.k8s.io/yaml"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// table collects rows for tablewriter
type table struct {
	header []string
	rows   [][]string
}

func (t *table) headers(cols ...string) {
	t.header = cols
}

func (t *table) row(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) error {
	tw := tablewriter.NewWriter(w)
	if len(t.header) > 0 {
		tw.Header(t.header)
	}
	for _, r := range t.rows {
		if err := tw.Append(r); err != nil {
			return fmt.Errorf("failed to add table row: %w", err)
		}
	}
	return tw.Render()
}

// render writes value as JSON or YAML, or as the table built by fill
func render(w io.Writer, format string, value any, fill func(*table)) error {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case formatYAML:
		data, err := yaml.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to format output as YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	case formatTable, "":
		t := &table{}
		fill(t)
		return t.write(w)
	default:
		return fmt.Errorf("unsupported output format %q (want table, json or yaml)", format)
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
