package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BUNQUERY_LOG_LEVEL", "ERROR")

	out := run(t, "--data", dir, "import", "../../testdata/people.jsonl", "--batch", "5")
	assert.Equal(t, "imported 20 documents\n", out)

	out = run(t, "--data", dir, "query",
		"{WHAT: [['.name.last']], WHERE: ['=', ['.contact.address.state'], ['$state']], ORDER_BY: [['.name.last']]}",
		"--bindings", "{state: 'WA'}")
	assert.Equal(t, "[\"Biela\"]\n[\"Ennis\"]\n[\"Ito\"]\n", out)

	out = run(t, "--data", dir, "index", "create", "state", "[['.contact.address.state']]")
	assert.Equal(t, "index state ready\n", out)

	out = run(t, "--data", dir, "index", "list")
	assert.Contains(t, out, "state")
	assert.Contains(t, out, "20")

	out = run(t, "--data", dir, "query", "--explain", "--bindings", "",
		"['=', ['.contact.address.state'], 'OR']")
	assert.Contains(t, out, "INDEX state")

	require.NoError(t, func() error {
		rootCmd.SetArgs([]string{"--data", dir, "index", "drop", "state"})
		return rootCmd.Execute()
	}())

	out = run(t, "--data", dir, "export", "-")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 20)
	assert.Contains(t, out, `"_id":"0000001"`)
}
