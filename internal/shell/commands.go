package shell

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Result is the outcome of one command.
type Result interface {
	Print(w io.Writer)
	IsExit() bool
}

type ErrorResult struct {
	Err string
}

func (e ErrorResult) Print(w io.Writer) {
	fmt.Fprintln(w, "ERROR")
	fmt.Fprintln(w, e.Err)
}

func (e ErrorResult) IsExit() bool { return false }

func errorResult(err error) ErrorResult { return ErrorResult{Err: err.Error()} }

type ExitResult struct{}

func (ExitResult) Print(w io.Writer) {}
func (ExitResult) IsExit() bool      { return true }

// OKResult prints OK followed by optional key=value details.
type OKResult struct {
	Details []string
}

func (o OKResult) Print(w io.Writer) {
	fmt.Fprintln(w, "OK")
	for _, d := range o.Details {
		fmt.Fprintln(w, d)
	}
}

func (o OKResult) IsExit() bool { return false }

type TextResult struct {
	Text string
}

func (t TextResult) Print(w io.Writer) { fmt.Fprintln(w, strings.TrimRight(t.Text, "\n")) }
func (t TextResult) IsExit() bool      { return false }

// RowsResult is a query result printed as a table.
type RowsResult struct {
	Columns []string
	Rows    [][]value.Value
}

func (r RowsResult) Print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d row%s)\n", len(r.Rows), plural(len(r.Rows)))
}

func (r RowsResult) IsExit() bool { return false }

// IndexesResult lists indexes.
type IndexesResult struct {
	Indexes []bunquery.IndexInfo
}

func (r IndexesResult) Print(w io.Writer) {
	if len(r.Indexes) == 0 {
		fmt.Fprintln(w, "(no indexes)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tENTRIES\tEXPRESSIONS")
	for _, ix := range r.Indexes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", ix.Name, ix.Kind, ix.Entries, ix.Expressions)
	}
	tw.Flush()
}

func (r IndexesResult) IsExit() bool { return false }

type HelpResult struct{}

func (HelpResult) Print(w io.Writer) {
	fmt.Fprintln(w, "bunquery shell")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Any line that is not a command is run as a query. Queries are JSON;")
	fmt.Fprintln(w, "single-quoted strings and bare keys are accepted:")
	fmt.Fprintln(w, "    {WHAT: ['.name'], WHERE: ['=', ['.state'], 'CA'], ORDER_BY: ['.name']}")
	fmt.Fprintln(w, "    ['>', ['.age'], ['$min']]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Documents:")
	fmt.Fprintln(w, "  .put <id> <json>              Store a document")
	fmt.Fprintln(w, "  .get <id>                     Read a document")
	fmt.Fprintln(w, "  .delete <id>                  Delete a document")
	fmt.Fprintln(w, "  .import <file> [id-field]     Import JSON lines (.zst is decompressed)")
	fmt.Fprintln(w, "  .export <file>                Export JSON lines (.zst is compressed)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Indexes:")
	fmt.Fprintln(w, "  .index <name> <json>          Create a value index over an expression array")
	fmt.Fprintln(w, "  .fts <name> <json>            Create a full-text index")
	fmt.Fprintln(w, "  .drop <name>                  Drop an index")
	fmt.Fprintln(w, "  .indexes                      List indexes")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Queries:")
	fmt.Fprintln(w, "  .explain <query>              Show the query plan")
	fmt.Fprintln(w, "  .bind <json>|off              Set parameter bindings for later queries")
	fmt.Fprintln(w, "  .limit <n>|off                Limit the rows printed")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  .help                         Show this help message")
	fmt.Fprintln(w, "  .exit                         Exit the shell")
}

func (HelpResult) IsExit() bool { return false }

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
