package core

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Tombstone is the sentinel value written by Delete. A user value equal to
// this sequence is indistinguishable from a logical delete.
const Tombstone = "__TOMBSTONE__"

// hdrLen is the fixed on-disk record header: crc | timestamp | key_size | value_size, 8 bytes each.
const hdrLen = 32

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// record is a decoded data-file entry together with the file offset it was
// read from and the offset at which its value bytes begin.
type record struct {
	timestamp uint64
	key       []byte
	value     []byte
	off       int64 // start offset of the record (header) in its segment
	valuePos  int64 // offset of the value bytes in its segment
}

// encodeRecord serializes a data record as:
//
//	crc:u64 | timestamp:u64 | key_size:u64 | value_size:u64 | key | value
//
// and returns the encoded bytes plus the offset of the value bytes within
// the buffer (== hdrLen+len(key)).
func encodeRecord(timestamp uint64, key, value []byte) (buf []byte, valueOff int) {
	total := hdrLen + len(key) + len(value)
	buf = make([]byte, total)

	binary.LittleEndian.PutUint64(buf[8:16], timestamp)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(key)))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(value)))
	copy(buf[hdrLen:], key)
	copy(buf[hdrLen+len(key):], value)

	checksum := crc32.Checksum(buf[8:], crc32cTable)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(checksum))

	return buf, hdrLen + len(key)
}

// decodedHeader is the parsed fixed-size prefix of a data record.
type decodedHeader struct {
	crc       uint64
	timestamp uint64
	keySize   uint64
	valueSize uint64
}

func decodeHeader(hdr []byte) decodedHeader {
	return decodedHeader{
		crc:       binary.LittleEndian.Uint64(hdr[0:8]),
		timestamp: binary.LittleEndian.Uint64(hdr[8:16]),
		keySize:   binary.LittleEndian.Uint64(hdr[16:24]),
		valueSize: binary.LittleEndian.Uint64(hdr[24:32]),
	}
}

// readRecordAt reads back a single record at off, validating the checksum
// when it is non-zero.
func readRecordAt(r io.ReaderAt, off int64) (*record, error) {
	var hdr [hdrLen]byte
	if _, err := r.ReadAt(hdr[:], off); err != nil {
		return nil, fmt.Errorf("%w: read record header at %d: %v", ErrIO, off, err)
	}
	dh := decodeHeader(hdr[:])

	buf := make([]byte, dh.keySize+dh.valueSize)
	if _, err := r.ReadAt(buf, off+hdrLen); err != nil {
		return nil, fmt.Errorf("%w: read record payload at %d: %v", ErrIO, off, err)
	}

	if dh.crc != 0 {
		full := append(append([]byte{}, hdr[8:]...), buf...)
		if computed := uint64(crc32.Checksum(full, crc32cTable)); computed != dh.crc {
			return nil, fmt.Errorf("%w: crc mismatch at offset %d: expected %x, got %x",
				ErrInvalidFileFormat, off, dh.crc, computed)
		}
	}

	key := buf[:dh.keySize]
	value := buf[dh.keySize:]

	return &record{
		timestamp: dh.timestamp,
		key:       key,
		value:     value,
		off:       off,
		valuePos:  off + hdrLen + int64(dh.keySize),
	}, nil
}

// recordScanner sequentially decodes records from a data file, stopping
// silently at a truncated tail (a crash mid-write) but surfacing a genuine
// mid-file checksum mismatch as an error.
type recordScanner struct {
	br  *bufio.Reader
	end int64 // running end offset, becomes the segment's live length
	err error
	cur *record
}

func newRecordScanner(r io.ReaderAt) *recordScanner {
	const maxInt64 = 1<<63 - 1
	sr := io.NewSectionReader(r, 0, maxInt64)
	return &recordScanner{br: bufio.NewReader(sr)}
}

func isTailTruncation(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// scan advances to the next record. It returns false at EOF or on error;
// callers should check Err() to distinguish the two.
func (rs *recordScanner) scan() bool {
	if rs.err != nil {
		return false
	}
	rs.cur = nil

	var hdr [hdrLen]byte
	if _, err := io.ReadFull(rs.br, hdr[:]); err != nil {
		if !isTailTruncation(err) {
			rs.err = fmt.Errorf("%w: read record header: %v", ErrIO, err)
		}
		return false
	}
	dh := decodeHeader(hdr[:])

	payload := make([]byte, dh.keySize+dh.valueSize)
	if _, err := io.ReadFull(rs.br, payload); err != nil {
		if !isTailTruncation(err) {
			rs.err = fmt.Errorf("%w: read record payload: %v", ErrIO, err)
		}
		// A partially-written key/value pair is tail corruption from a
		// crash; it is silently discarded, matching the header case.
		return false
	}

	if dh.crc != 0 {
		full := append(append([]byte{}, hdr[8:]...), payload...)
		if computed := uint64(crc32.Checksum(full, crc32cTable)); computed != dh.crc {
			rs.err = fmt.Errorf("%w: crc mismatch at offset %d: expected %x, got %x",
				ErrInvalidFileFormat, rs.end, dh.crc, computed)
			return false
		}
	}

	key := payload[:dh.keySize]
	value := payload[dh.keySize:]

	rs.cur = &record{
		timestamp: dh.timestamp,
		key:       key,
		value:     value,
		off:       rs.end,
		valuePos:  rs.end + hdrLen + int64(dh.keySize),
	}
	rs.end += int64(hdrLen) + int64(dh.keySize) + int64(dh.valueSize)

	return true
}

func (rs *recordScanner) Err() error { return rs.err }
