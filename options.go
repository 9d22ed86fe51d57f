package bunquery

import (
	"log/slog"

	"github.com/kartikbazzad/bunbase/bunquery/internal/config"
	"github.com/kartikbazzad/bunbase/bunquery/internal/logger"
)

// Options configures a database instance
type Options struct {
	// Path to database directory. Empty keeps everything in memory.
	Path string

	// SyncOnCommit fsyncs the write-ahead log on every commit.
	SyncOnCommit bool

	// IndexWorkers bounds the goroutines used to build a new index
	// (default: 4)
	IndexWorkers int

	// Logger receives database events (default: the global logger)
	Logger *slog.Logger
}

// DefaultOptions returns default database options
func DefaultOptions(path string) *Options {
	return &Options{
		Path:         path,
		SyncOnCommit: true,
		IndexWorkers: 4,
	}
}

// OptionsFromConfig derives database options from process configuration.
func OptionsFromConfig(cfg *config.Config) *Options {
	return &Options{
		Path:         cfg.Storage.Path,
		SyncOnCommit: cfg.Storage.SyncOnCommit,
		IndexWorkers: cfg.Index.Workers,
		Logger:       logger.Get(),
	}
}

// RunOptions bounds the rows an enumerator yields: the first Skip rows are
// dropped, then at most Limit rows are returned. Limit <= 0 means no
// limit.
type RunOptions struct {
	Skip  int
	Limit int
}

// ImportOptions configures ImportJSONLines.
type ImportOptions struct {
	// IDField names a top-level string member holding the document id; it
	// is removed from the stored body. Documents without it get sequential
	// ids "0000001", "0000002", ... in input order.
	IDField string
	// BatchSize is the number of documents committed per transaction
	// (default: 1000).
	BatchSize int
	// Compressed reads zstd-compressed input.
	Compressed bool
}

// ExportOptions configures Export.
type ExportOptions struct {
	// IDField is the member the document id is written to (default: "_id").
	IDField string
	// Compressed writes zstd-compressed output.
	Compressed bool
}
