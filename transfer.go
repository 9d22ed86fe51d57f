package bunquery

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/kartikbazzad/bunbase/bunquery/storage"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

const maxLineSize = 16 << 20

// ImportJSONLines stores one document per line of r, committing every
// BatchSize documents. Blank lines are skipped. It returns the number of
// documents committed; on error, batches committed before it remain.
func (db *Database) ImportJSONLines(r io.Reader, opts *ImportOptions) (int, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	if opts.Compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return 0, &Error{Domain: StorageDomain, Code: ErrStorage, Message: "failed to open zstd stream", Err: err}
		}
		defer dec.Close()
		r = dec
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var txn *Transaction
	committed, pending, ordinal, line := 0, 0, 0, 0
	fail := func(err error) (int, error) {
		if txn != nil {
			db.RollbackTransaction(txn)
		}
		return committed, err
	}
	flush := func() error {
		if txn == nil {
			return nil
		}
		_, err := db.CommitTransaction(txn)
		txn = nil
		if err != nil {
			return err
		}
		committed += pending
		pending = 0
		return nil
	}

	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		body, err := value.ParseJSON(data)
		if err != nil {
			return fail(&Error{Domain: StorageDomain, Code: ErrStorage, Message: fmt.Sprintf("line %d is not valid JSON", line), Err: err})
		}
		ordinal++
		id := fmt.Sprintf("%07d", ordinal)
		if opts.IDField != "" {
			if v := body.Get(opts.IDField); v.Kind() == value.KindString && v.AsString() != "" {
				id = v.AsString()
				body = without(body, opts.IDField)
			}
		}
		if txn == nil {
			if txn, err = db.BeginTransaction(); err != nil {
				return committed, err
			}
		}
		if err := txn.PutValue(id, body); err != nil {
			return fail(fmt.Errorf("line %d: %w", line, err))
		}
		pending++
		if pending >= batch {
			if err := flush(); err != nil {
				return committed, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fail(&Error{Domain: StorageDomain, Code: ErrStorage, Message: "failed to read input", Err: err})
	}
	if err := flush(); err != nil {
		return committed, err
	}
	db.log.Info("documents imported", "count", committed, "sequence", db.LastSequence())
	return committed, nil
}

// Export writes every live document as one JSON line, in ascending id
// order, with its id stored under IDField. The output is a consistent
// snapshot. It returns the number of documents written.
func (db *Database) Export(w io.Writer, opts *ExportOptions) (n int, err error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	if opts == nil {
		opts = &ExportOptions{}
	}
	idField := opts.IDField
	if idField == "" {
		idField = "_id"
	}
	if opts.Compressed {
		enc, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return 0, &Error{Domain: StorageDomain, Code: ErrStorage, Message: "failed to open zstd stream", Err: zerr}
		}
		defer func() {
			if cerr := enc.Close(); cerr != nil && err == nil {
				err = &Error{Domain: StorageDomain, Code: ErrStorage, Message: "failed to finish zstd stream", Err: cerr}
			}
		}()
		w = enc
	}

	sn, err := db.store.Snapshot()
	if err != nil {
		return 0, wrapError(err)
	}
	defer sn.Release()

	bw := bufio.NewWriter(w)
	var werr error
	sn.Scan(func(doc *storage.Document) bool {
		fields := make(map[string]value.Value, len(doc.Body.Fields())+1)
		for k, v := range doc.Body.Fields() {
			fields[k] = v
		}
		fields[idField] = value.String(doc.ID)
		data, err := value.Object(fields).MarshalJSON()
		if err == nil {
			_, err = bw.Write(append(data, '\n'))
		}
		if err != nil {
			werr = err
			return false
		}
		n++
		return true
	})
	if werr == nil {
		werr = bw.Flush()
	}
	if werr != nil {
		return n, &Error{Domain: StorageDomain, Code: ErrStorage, Message: "failed to write export", Err: werr}
	}
	return n, nil
}

func without(obj value.Value, key string) value.Value {
	fields := make(map[string]value.Value, len(obj.Fields()))
	for k, v := range obj.Fields() {
		if k != key {
			fields[k] = v
		}
	}
	return value.Object(fields)
}
