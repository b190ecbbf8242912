package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/medkit/medinventory"
)

// namedPartition is one partition of a read prepared for printing.
type namedPartition struct {
	name   string
	count  int64
	data   any
	header []string
	rows   [][]string
}

func partitionOf[T any](name string, res medinventory.PartitionResult[T], header []string, row func(T) []string) namedPartition {
	p := namedPartition{name: name, count: res.Count, data: res.Data, header: header}
	for _, r := range res.Data {
		p.rows = append(p.rows, row(r))
	}
	return p
}

// printState writes the partitions of one read. A failed read is still
// printed, with its message, and then reported as the command's error.
func (a *app) printState(st medinventory.State, parts ...namedPartition) error {
	if a.jsonOutput {
		out := map[string]any{"loading": st.Loading, "error": nil}
		if st.Err != nil {
			out["error"] = st.Message()
		}
		for _, p := range parts {
			out[p.name] = map[string]any{"data": p.data, "count": p.count}
		}
		if err := a.printJSON(out); err != nil {
			return err
		}
		return st.Err
	}

	for i, p := range parts {
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		fmt.Fprintf(a.out, "%s (%d total)\n", p.name, p.count)
		printTable(a.out, p.header, p.rows)
	}
	return st.Err
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func printTable(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	_ = tw.Flush()
}
