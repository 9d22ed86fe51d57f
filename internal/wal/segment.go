package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SegmentID uniquely identifies a WAL segment file
type SegmentID uint64

// DefaultSegmentSize is the default maximum size for a WAL segment (64MB)
const DefaultSegmentSize = 64 * 1024 * 1024

func segmentPath(dir string, id SegmentID) string {
	return filepath.Join(dir, fmt.Sprintf("wal-%016x.log", id))
}

// Segment is a single WAL file of length-prefixed records.
type Segment struct {
	ID      SegmentID
	file    *os.File
	size    int64
	maxSize int64
}

// openSegment opens or creates a segment for appending.
func openSegment(dir string, id SegmentID, maxSize int64) (*Segment, error) {
	file, err := os.OpenFile(segmentPath(dir, id), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL segment: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat WAL segment: %w", err)
	}
	return &Segment{ID: id, file: file, size: info.Size(), maxSize: maxSize}, nil
}

// write appends encoded records with a single write call.
func (s *Segment) write(records []*Record) error {
	n := 0
	for _, r := range records {
		n += 4 + r.Size()
	}
	buf := make([]byte, 0, n)
	for _, r := range records {
		data := r.Encode()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
		buf = append(buf, data...)
	}
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrDiskWriteFailed, err)
	}
	s.size += int64(len(buf))
	return nil
}

func (s *Segment) sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrDiskWriteFailed, err)
	}
	return nil
}

func (s *Segment) full() bool { return s.size >= s.maxSize }

func (s *Segment) close() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// readSegment returns the records of a segment file. A torn record at the
// end of the file (a crash mid-write) ends the read without error; a bad
// record followed by more data is corruption.
func readSegment(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL segment: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []*Record
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return records, nil
			}
			return nil, err
		}
		data := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(r, data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return records, nil
			}
			return nil, err
		}
		rec, err := Decode(data)
		if err != nil {
			if _, peekErr := r.Peek(1); peekErr == io.EOF {
				return records, nil
			}
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		records = append(records, rec)
	}
}
