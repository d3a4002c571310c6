package core

import (
	"encoding/binary"
	"fmt"
)

// hintHdrLen is the fixed on-disk hint record header:
// timestamp | key_size | value_size | value_pos, 8 bytes each.
const hintHdrLen = 32

// hintEntry is a decoded hint-file record: a key-only index entry pointing
// into the data segment that shares its file_id.
type hintEntry struct {
	timestamp uint64
	valueSize uint64
	valuePos  uint64
	key       []byte
}

// hintFileBuilder accumulates hint records into a single in-memory buffer so
// the whole hint file can be written atomically in one rename (§10.6).
type hintFileBuilder struct {
	buf []byte
}

func (b *hintFileBuilder) append(timestamp uint64, key []byte, valueSize uint64, valuePos uint64) {
	entry := make([]byte, hintHdrLen+len(key))
	binary.LittleEndian.PutUint64(entry[0:8], timestamp)
	binary.LittleEndian.PutUint64(entry[8:16], uint64(len(key)))
	binary.LittleEndian.PutUint64(entry[16:24], valueSize)
	binary.LittleEndian.PutUint64(entry[24:32], valuePos)
	copy(entry[hintHdrLen:], key)
	b.buf = append(b.buf, entry...)
}

func (b *hintFileBuilder) bytes() []byte { return b.buf }

// decodeHintFile parses the full contents of a hint file into entries. A
// truncated tail (a crash mid-merge before the atomic rename) cannot occur
// here because hint files are only ever made visible by a single atomic
// rename (§10.6); any trailing bytes that don't form a whole record are
// reported as a format error rather than silently dropped.
func decodeHintFile(data []byte) ([]hintEntry, error) {
	var entries []hintEntry
	pos := 0
	for pos < len(data) {
		if len(data)-pos < hintHdrLen {
			return nil, fmt.Errorf("%w: truncated hint record header at offset %d", ErrInvalidFileFormat, pos)
		}
		hdr := data[pos : pos+hintHdrLen]
		timestamp := binary.LittleEndian.Uint64(hdr[0:8])
		keySize := binary.LittleEndian.Uint64(hdr[8:16])
		valueSize := binary.LittleEndian.Uint64(hdr[16:24])
		valuePos := binary.LittleEndian.Uint64(hdr[24:32])
		pos += hintHdrLen

		if uint64(len(data)-pos) < keySize {
			return nil, fmt.Errorf("%w: truncated hint key at offset %d", ErrInvalidFileFormat, pos)
		}
		key := make([]byte, keySize)
		copy(key, data[pos:pos+int(keySize)])
		pos += int(keySize)

		entries = append(entries, hintEntry{
			timestamp: timestamp,
			valueSize: valueSize,
			valuePos:  valuePos,
			key:       key,
		})
	}
	return entries, nil
}
