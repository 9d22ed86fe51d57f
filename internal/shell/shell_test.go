package shell

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/internal/logger"
)

func newShell(t *testing.T) *Shell {
	t.Helper()
	opts := bunquery.DefaultOptions("")
	opts.Logger = logger.Discard()
	db, err := bunquery.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func exec(t *testing.T, s *Shell, line string) string {
	t.Helper()
	cmd, err := Parse(line)
	require.NoError(t, err)
	var buf bytes.Buffer
	s.Execute(cmd).Print(&buf)
	return buf.String()
}

func TestParse(t *testing.T) {
	cmd, err := Parse("  .PUT a {'x': 1, 'y': 2}  ")
	require.NoError(t, err)
	assert.Equal(t, ".put", cmd.Name)
	assert.False(t, cmd.IsQuery())
	payload, err := cmd.Payload(1)
	require.NoError(t, err)
	assert.Equal(t, "{'x': 1, 'y': 2}", payload)

	cmd, err = Parse(`['=', 1, 1]`)
	require.NoError(t, err)
	assert.True(t, cmd.IsQuery())

	_, err = Parse("   ")
	assert.Error(t, err)

	cmd, _ = Parse(".get")
	assert.Error(t, ValidateArgs(cmd, 1))
	_, err = cmd.Payload(0)
	assert.Error(t, err)
}

func TestParseLimit(t *testing.T) {
	n, err := ParseLimit("10")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	n, err = ParseLimit("OFF")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = ParseLimit("-1")
	assert.Error(t, err)
}

func TestShellSession(t *testing.T) {
	s := newShell(t)
	assert.Contains(t, exec(t, s, `.put a {name: 'ann', city: 'Oslo', bio: 'red fox'}`), "sequence=1")
	exec(t, s, `.put b {name: 'bob', city: 'Rome', bio: 'lazy dog'}`)
	exec(t, s, `.put c {name: 'cy', city: 'Oslo', bio: 'quick red fox'}`)

	assert.Equal(t, "{\"bio\":\"lazy dog\",\"city\":\"Rome\",\"name\":\"bob\"}\n", exec(t, s, ".get b"))

	out := exec(t, s, `{WHAT: ['.name'], WHERE: ['=', ['.city'], 'Oslo'], ORDER_BY: [['.name', 'DESC']]}`)
	assert.Equal(t, "name\n\"cy\"\n\"ann\"\n(2 rows)\n", out)

	assert.Contains(t, exec(t, s, `.index city [['.city']]`), "index=city")
	assert.Contains(t, exec(t, s, `.fts bio [['.bio']]`), "index=bio")
	out = exec(t, s, ".indexes")
	assert.Contains(t, out, "bio")
	assert.Contains(t, out, "fulltext")

	assert.Contains(t, exec(t, s, `.explain ['=', ['.city'], 'Oslo']`), "INDEX city")

	exec(t, s, ".bind {q: 'fox'}")
	assert.Contains(t, exec(t, s, `['MATCH', 'bio', ['$q']]`), "(2 rows)")
	exec(t, s, ".limit 1")
	assert.Contains(t, exec(t, s, `['MATCH', 'bio', ['$q']]`), "(1 row)")
	exec(t, s, ".limit off")
	exec(t, s, ".bind off")
	assert.Contains(t, exec(t, s, `['MATCH', 'bio', ['$q']]`), "binding error")

	exec(t, s, ".delete a")
	assert.Contains(t, exec(t, s, `['MATCH', 'bio', 'fox']`), "(1 row)")
	assert.Contains(t, exec(t, s, ".drop bio"), "OK")
	assert.Contains(t, exec(t, s, `['MATCH', 'bio', 'fox']`), "ERROR")

	assert.Contains(t, exec(t, s, ".nope"), "unknown command")
	assert.Contains(t, exec(t, s, `['=']`), "invalid query")
}

func TestImportExportCommands(t *testing.T) {
	s := newShell(t)
	exec(t, s, `.put a {n: 1}`)
	exec(t, s, `.put b {n: 2}`)

	path := filepath.Join(t.TempDir(), "docs.jsonl.zst")
	assert.Contains(t, exec(t, s, ".export "+path), "exported=2")

	other := newShell(t)
	assert.Contains(t, exec(t, other, ".import "+path+" _id"), "imported=2")
	assert.Contains(t, exec(t, other, ".get b"), `"n":2`)
}

func TestRunStopsAtExit(t *testing.T) {
	s := newShell(t)
	input := strings.Join([]string{
		".put a {n: 1}",
		"",
		"['=', ['.n'], 1]",
		".exit",
		".put b {n: 2}",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, s.Run(NewNoninteractive(strings.NewReader(input)), &out))
	assert.Contains(t, out.String(), "(1 row)")
	assert.NotContains(t, exec(t, s, "['=', 1, 1]"), "\"b\"")
}
