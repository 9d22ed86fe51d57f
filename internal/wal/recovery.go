package wal

// Txn is a committed transaction recovered from the log.
type Txn struct {
	Sequence uint64
	Records  []*Record
}

// committed groups data records by sequence and keeps the transactions
// whose commit marker is present, in log order.
func committed(records []*Record) []Txn {
	pending := make(map[uint64][]*Record)
	var out []Txn
	for _, r := range records {
		switch r.Type {
		case RecordTypeCommit:
			out = append(out, Txn{Sequence: r.Sequence, Records: pending[r.Sequence]})
			delete(pending, r.Sequence)
		case RecordTypePut, RecordTypeDelete:
			pending[r.Sequence] = append(pending[r.Sequence], r)
		}
	}
	return out
}
