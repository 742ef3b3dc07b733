package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Table is a result that can be printed as rows. JSON and YAML output
// encode the value itself.
type Table interface {
	Header() []string
	Rows() [][]string
}

// Write formats a result according to output format
func Write(w io.Writer, format string, result Table) error {
	switch format {
	case FormatJSON:
		return formatJSON(w, result)
	case FormatYAML:
		return formatYAML(w, result)
	case FormatTable, "":
		return formatTable(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatTable(w io.Writer, result Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := result.Header()
	if len(header) > 0 {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, row := range result.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func formatJSON(w io.Writer, result Table) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func formatYAML(w io.Writer, result Table) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(result)
}

// FormatBytes formats byte count as human readable
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
