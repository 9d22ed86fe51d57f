// Package shell is an interactive query shell over a Database.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

const prompt = "bunquery> "

// Prompter reads input lines.
type Prompter interface {
	Prompt(p string) (string, error)
	AppendHistory(line string)
	Close() error
}

type interactive struct {
	line        *liner.State
	historyPath string
}

// NewInteractive returns a Prompter with line editing, keeping history in
// historyPath when it is not empty.
func NewInteractive(historyPath string) Prompter {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			l.ReadHistory(f)
			f.Close()
		}
	}
	return &interactive{line: l, historyPath: historyPath}
}

func (i *interactive) Prompt(p string) (string, error) { return i.line.Prompt(p) }
func (i *interactive) AppendHistory(line string)       { i.line.AppendHistory(line) }

func (i *interactive) Close() error {
	if i.historyPath != "" {
		if f, err := os.Create(i.historyPath); err == nil {
			i.line.WriteHistory(f)
			f.Close()
		}
	}
	return i.line.Close()
}

type noninteractive struct {
	input *bufio.Reader
}

// NewNoninteractive reads lines from r without prompting, for scripts.
func NewNoninteractive(r io.Reader) Prompter {
	return &noninteractive{input: bufio.NewReader(r)}
}

func (n *noninteractive) Prompt(string) (string, error) {
	line, err := n.input.ReadString('\n')
	if err == io.EOF && line != "" {
		return line, nil
	}
	return line, err
}

func (n *noninteractive) AppendHistory(string) {}
func (n *noninteractive) Close() error         { return nil }

// Shell executes commands against a database.
type Shell struct {
	db       *bunquery.Database
	bindings []byte
	limit    int
}

func New(db *bunquery.Database) *Shell {
	return &Shell{db: db}
}

// Run reads and executes lines until .exit or end of input.
func (s *Shell) Run(p Prompter, out io.Writer) error {
	for {
		line, err := p.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		p.AppendHistory(strings.TrimSpace(line))

		cmd, err := Parse(line)
		if err != nil {
			errorResult(err).Print(out)
			continue
		}
		result := s.Execute(cmd)
		if result.IsExit() {
			return nil
		}
		result.Print(out)
		fmt.Fprintln(out)
	}
}

// Execute runs one command.
func (s *Shell) Execute(cmd *Command) Result {
	if cmd.IsQuery() {
		return s.runQuery(cmd.Line)
	}
	switch cmd.Name {
	case ".help":
		return HelpResult{}
	case ".exit", ".quit":
		return ExitResult{}
	case ".put":
		return s.put(cmd)
	case ".get":
		return s.get(cmd)
	case ".delete":
		return s.delete(cmd)
	case ".import":
		return s.importFile(cmd)
	case ".export":
		return s.exportFile(cmd)
	case ".index":
		return s.createIndex(cmd, bunquery.ValueIndex)
	case ".fts":
		return s.createIndex(cmd, bunquery.FullTextIndex)
	case ".drop":
		if err := ValidateArgs(cmd, 1); err != nil {
			return errorResult(err)
		}
		if err := s.db.DropIndex(cmd.Args[0]); err != nil {
			return errorResult(err)
		}
		return OKResult{}
	case ".indexes":
		return IndexesResult{Indexes: s.db.Indexes()}
	case ".explain":
		return s.explain(cmd)
	case ".bind":
		return s.bind(cmd)
	case ".limit":
		if err := ValidateArgs(cmd, 1); err != nil {
			return errorResult(err)
		}
		n, err := ParseLimit(cmd.Args[0])
		if err != nil {
			return errorResult(err)
		}
		s.limit = n
		return OKResult{}
	}
	return ErrorResult{Err: fmt.Sprintf("unknown command: %s (try .help)", cmd.Name)}
}

// relax turns relaxed JSON typed at the prompt into strict JSON.
func relax(s string) ([]byte, error) {
	out, err := query.Relax(s)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (s *Shell) compile(text string) (*bunquery.Query, error) {
	data, err := relax(text)
	if err != nil {
		return nil, err
	}
	return s.db.Compile(data)
}

func (s *Shell) runQuery(text string) Result {
	q, err := s.compile(text)
	if err != nil {
		return errorResult(err)
	}
	defer q.Free()
	e, err := q.Run(&bunquery.RunOptions{Limit: s.limit}, s.bindings)
	if err != nil {
		return errorResult(err)
	}
	defer e.Free()

	res := RowsResult{Rows: [][]value.Value{}}
	for i := 0; i < q.ColumnCount(); i++ {
		title, _ := q.ColumnTitle(i)
		res.Columns = append(res.Columns, title)
	}
	for e.Next() {
		row, err := e.Columns()
		if err != nil {
			return errorResult(err)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := e.Err(); err != nil {
		return errorResult(err)
	}
	return res
}

func (s *Shell) explain(cmd *Command) Result {
	text, err := cmd.Payload(0)
	if err != nil {
		return errorResult(err)
	}
	q, err := s.compile(text)
	if err != nil {
		return errorResult(err)
	}
	defer q.Free()
	plan, err := q.Explain()
	if err != nil {
		return errorResult(err)
	}
	return TextResult{Text: plan}
}

func (s *Shell) bind(cmd *Command) Result {
	text, err := cmd.Payload(0)
	if err != nil {
		return errorResult(err)
	}
	if strings.EqualFold(text, "off") {
		s.bindings = nil
		return OKResult{}
	}
	data, err := relax(text)
	if err != nil {
		return errorResult(err)
	}
	v, err := value.ParseJSON(data)
	if err != nil {
		return errorResult(err)
	}
	if v.Kind() != value.KindObject {
		return ErrorResult{Err: "bindings must be a JSON object"}
	}
	s.bindings = data
	return OKResult{}
}

func (s *Shell) put(cmd *Command) Result {
	if err := ValidateArgs(cmd, 1); err != nil {
		return errorResult(err)
	}
	text, err := cmd.Payload(1)
	if err != nil {
		return errorResult(err)
	}
	data, err := relax(text)
	if err != nil {
		return errorResult(err)
	}
	seq, err := s.db.Put(cmd.Args[0], data)
	if err != nil {
		return errorResult(err)
	}
	return OKResult{Details: []string{fmt.Sprintf("sequence=%d", seq)}}
}

func (s *Shell) get(cmd *Command) Result {
	if err := ValidateArgs(cmd, 1); err != nil {
		return errorResult(err)
	}
	doc, err := s.db.Get(cmd.Args[0])
	if err != nil {
		return errorResult(err)
	}
	return TextResult{Text: doc.Body.String()}
}

func (s *Shell) delete(cmd *Command) Result {
	if err := ValidateArgs(cmd, 1); err != nil {
		return errorResult(err)
	}
	seq, err := s.db.Delete(cmd.Args[0])
	if err != nil {
		return errorResult(err)
	}
	return OKResult{Details: []string{fmt.Sprintf("sequence=%d", seq)}}
}

func (s *Shell) createIndex(cmd *Command, kind bunquery.IndexKind) Result {
	if err := ValidateArgs(cmd, 1); err != nil {
		return errorResult(err)
	}
	text, err := cmd.Payload(1)
	if err != nil {
		return errorResult(err)
	}
	data, err := relax(text)
	if err != nil {
		return errorResult(err)
	}
	name, err := s.db.CreateIndex(data, kind, &bunquery.IndexOptions{Name: cmd.Args[0]}, false)
	if err != nil {
		return errorResult(err)
	}
	return OKResult{Details: []string{"index=" + name}}
}

func compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zst")
}

func (s *Shell) importFile(cmd *Command) Result {
	if err := ValidateArgs(cmd, 1); err != nil {
		return errorResult(err)
	}
	f, err := os.Open(cmd.Args[0])
	if err != nil {
		return errorResult(err)
	}
	defer f.Close()
	opts := &bunquery.ImportOptions{Compressed: compressed(cmd.Args[0])}
	if len(cmd.Args) > 1 {
		opts.IDField = cmd.Args[1]
	}
	n, err := s.db.ImportJSONLines(f, opts)
	if err != nil {
		return ErrorResult{Err: fmt.Sprintf("%v (%d documents imported)", err, n)}
	}
	return OKResult{Details: []string{fmt.Sprintf("imported=%d", n)}}
}

func (s *Shell) exportFile(cmd *Command) Result {
	if err := ValidateArgs(cmd, 1); err != nil {
		return errorResult(err)
	}
	f, err := os.Create(cmd.Args[0])
	if err != nil {
		return errorResult(err)
	}
	n, err := s.db.Export(f, &bunquery.ExportOptions{Compressed: compressed(cmd.Args[0])})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errorResult(err)
	}
	return OKResult{Details: []string{fmt.Sprintf("exported=%d", n)}}
}
