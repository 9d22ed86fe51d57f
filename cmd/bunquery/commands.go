package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/internal/logger"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/internal/server"
	"github.com/kartikbazzad/bunbase/bunquery/internal/shell"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			srv, err := server.New(db, cfg.Server, logger.Get())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// relaxed accepts single-quoted strings and bare keys on the command line.
func relaxed(s string) ([]byte, error) {
	out, err := query.Relax(s)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func queryCmd() *cobra.Command {
	var (
		bindings string
		skip     int
		limit    int
		explain  bool
	)
	cmd := &cobra.Command{
		Use:   "query <json>",
		Short: "Run a query and print one JSON array per row",
		Example: `  bunquery query "{WHAT: ['.name'], WHERE: ['=', ['.state'], ['\$state']]}" --bindings "{state: 'CA'}"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := relaxed(args[0])
			if err != nil {
				return err
			}
			var b []byte
			if bindings != "" {
				if b, err = relaxed(bindings); err != nil {
					return err
				}
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			q, err := db.Compile(text)
			if err != nil {
				return err
			}
			defer q.Free()
			out := cmd.OutOrStdout()
			if explain {
				plan, err := q.Explain()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, plan)
				return nil
			}
			return printRows(out, q, &bunquery.RunOptions{Skip: skip, Limit: limit}, b)
		},
	}
	cmd.Flags().StringVarP(&bindings, "bindings", "b", "", "parameter bindings as a JSON object")
	cmd.Flags().IntVar(&skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 = no limit)")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the query plan instead of running it")
	return cmd
}

func printRows(w io.Writer, q *bunquery.Query, opts *bunquery.RunOptions, bindings []byte) error {
	e, err := q.Run(opts, bindings)
	if err != nil {
		return err
	}
	defer e.Free()
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	for e.Next() {
		row, err := e.Columns()
		if err != nil {
			return err
		}
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	return e.Err()
}

func isCompressed(path string, flag bool) bool {
	return flag || strings.EqualFold(filepath.Ext(path), ".zst")
}

func importCmd() *cobra.Command {
	var opts bunquery.ImportOptions
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import JSON lines, one document per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			opts.Compressed = isCompressed(args[0], opts.Compressed)

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := db.ImportJSONLines(r, &opts)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.IDField, "id-field", "", "member holding the document id (default: sequential ids)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 1000, "documents per transaction")
	cmd.Flags().BoolVar(&opts.Compressed, "zstd", false, "input is zstd-compressed (implied by .zst)")
	return cmd
}

func exportCmd() *cobra.Command {
	var opts bunquery.ExportOptions
	cmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Export every document as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			if args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			opts.Compressed = isCompressed(args[0], opts.Compressed)
			n, err := db.Export(w, &opts)
			if err != nil {
				return err
			}
			logger.Info("export finished", "documents", n, "file", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.IDField, "id-field", "_id", "member the document id is written to")
	cmd.Flags().BoolVar(&opts.Compressed, "zstd", false, "compress the output (implied by .zst)")
	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage indexes",
	}

	var (
		kind      string
		opts      bunquery.IndexOptions
		overwrite bool
	)
	create := &cobra.Command{
		Use:     "create <name> <json-expressions>",
		Short:   "Create an index over an array of expressions",
		Example: `  bunquery index create last "[['.name.last']]"` + "\n" + `  bunquery index create street "[['.contact.address.street']]" --kind fulltext`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := bunquery.ParseIndexKind(kind)
			if err != nil {
				return err
			}
			exprs, err := relaxed(args[1])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			opts.Name = args[0]
			name, err := db.CreateIndex(exprs, k, &opts, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index %s ready\n", name)
			return nil
		},
	}
	create.Flags().StringVar(&kind, "kind", "value", "value or fulltext")
	create.Flags().BoolVar(&opts.IgnoreDiacritics, "ignore-diacritics", false, "full-text: fold accented letters")
	create.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing index with the same name")

	drop := &cobra.Command{
		Use:   "drop <name>",
		Short: "Drop an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.DropIndex(args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			shell.IndexesResult{Indexes: db.Indexes()}.Print(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.AddCommand(create, drop, list)
	return cmd
}

func shellCmd() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive query shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var p shell.Prompter
			if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "bunquery shell. Type '.help' for commands.")
				p = shell.NewInteractive(history)
			} else {
				p = shell.NewNoninteractive(os.Stdin)
			}
			defer p.Close()
			return shell.New(db).Run(p, cmd.OutOrStdout())
		},
	}
	home, _ := os.UserHomeDir()
	defaultHistory := ""
	if home != "" {
		defaultHistory = filepath.Join(home, ".bunquery_history")
	}
	cmd.Flags().StringVar(&history, "history", defaultHistory, "history file (empty disables)")
	return cmd
}
