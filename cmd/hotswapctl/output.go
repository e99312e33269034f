package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func render(w io.Writer, status map[string]any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Colors: text.Colors{text.Bold}}})

	for _, key := range []string{"active", "staged", "staging", "state", "percentage", "migration_id"} {
		t.AppendRow(table.Row{key, status[key]})
	}
	if m, ok := status["metrics"].(map[string]any); ok {
		t.AppendSeparator()
		appendSorted(t, "metrics.", m)
	}
	if r, ok := status["report"].(map[string]any); ok {
		t.AppendSeparator()
		appendSorted(t, "report.", r)
	}
	t.Render()
	return nil
}

func appendSorted(t table.Writer, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{prefix + k, fmt.Sprint(m[k])})
	}
}
