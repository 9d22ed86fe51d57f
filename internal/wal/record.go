package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// RecordType represents the type of WAL record
type RecordType byte

const (
	RecordTypeInvalid RecordType = iota
	RecordTypePut                // Document revision
	RecordTypeDelete             // Document tombstone
	RecordTypeCommit             // Transaction commit marker
)

// LSN (Log Sequence Number) uniquely identifies a WAL record
type LSN uint64

// Record is a single WAL entry. All records of one transaction share its
// commit Sequence, and the transaction is durable once its commit marker
// is on disk.
type Record struct {
	LSN       LSN
	Sequence  uint64
	Type      RecordType
	Timestamp int64 // Unix nanoseconds
	DocID     []byte
	RevID     []byte
	Body      []byte // JSON body, empty for deletes and commits
}

// Record layout:
// - CRC32 (4 bytes) - checksum of the rest of the record
// - LSN (8 bytes)
// - Sequence (8 bytes)
// - Type (1 byte)
// - Timestamp (8 bytes)
// - DocIDLen (4 bytes)
// - RevIDLen (4 bytes)
// - BodyLen (4 bytes)
// Total header: 41 bytes
const RecordHeaderSize = 41

// Encode serializes a WAL record to bytes
func (r *Record) Encode() []byte {
	buf := make([]byte, r.Size())
	off := 4 // CRC is written last

	binary.LittleEndian.PutUint64(buf[off:], uint64(r.LSN))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], r.Sequence)
	off += 8
	buf[off] = byte(r.Type)
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.Timestamp))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.DocID)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.RevID)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Body)))
	off += 4
	off += copy(buf[off:], r.DocID)
	off += copy(buf[off:], r.RevID)
	copy(buf[off:], r.Body)

	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(buf[4:]))
	return buf
}

// Decode deserializes a WAL record from bytes
func Decode(data []byte) (*Record, error) {
	if len(data) < RecordHeaderSize {
		return nil, fmt.Errorf("%w: record too short (%d bytes)", ErrWALCorrupt, len(data))
	}
	expected := binary.LittleEndian.Uint32(data[0:4])
	if actual := crc32.ChecksumIEEE(data[4:]); expected != actual {
		return nil, fmt.Errorf("%w: CRC mismatch (expected %d, got %d)", ErrWALCorrupt, expected, actual)
	}

	r := &Record{}
	off := 4
	r.LSN = LSN(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	r.Sequence = binary.LittleEndian.Uint64(data[off:])
	off += 8
	r.Type = RecordType(data[off])
	off++
	r.Timestamp = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	idLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	revLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	bodyLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	if off+idLen+revLen+bodyLen != len(data) {
		return nil, fmt.Errorf("%w: record length mismatch", ErrWALCorrupt)
	}
	r.DocID = append([]byte(nil), data[off:off+idLen]...)
	off += idLen
	r.RevID = append([]byte(nil), data[off:off+revLen]...)
	off += revLen
	r.Body = append([]byte(nil), data[off:off+bodyLen]...)
	return r, nil
}

// Size returns the size of the encoded record in bytes
func (r *Record) Size() int {
	return RecordHeaderSize + len(r.DocID) + len(r.RevID) + len(r.Body)
}

func (r *Record) String() string {
	return fmt.Sprintf("Record{LSN:%d, Seq:%d, Type:%d, DocID:%q, BodyLen:%d}",
		r.LSN, r.Sequence, r.Type, r.DocID, len(r.Body))
}
