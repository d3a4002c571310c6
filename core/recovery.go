package core

import (
	"fmt"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// buildKeydir implements §4.4: scan dir for candidate segments (ascending
// file_id), preferring a sibling hint file over a full data-file scan, and
// return the resulting key -> location map. Both Open and Merge call this
// against the same directory; Merge's call is the "fresh keydir... snapshot
// of what is live at merge entry" of §4.5 step 1.
func buildKeydir(dir string, log *zap.Logger) (map[string]keydirEntry, error) {
	segs, _, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]keydirEntry)

	orphans := mapset.NewSet[string]()
	for _, s := range segs {
		if s.unparsed != "" {
			orphans.Add(s.unparsed)
			continue
		}

		if s.hasHint {
			if err := ingestHint(dir, s.id, out); err != nil {
				return nil, err
			}
			continue
		}

		if err := ingestDataFile(dir, s.id, out); err != nil {
			return nil, err
		}
	}

	if orphans.Cardinality() > 0 {
		log.Warn("recovery: ignoring unparseable entries in data directory",
			zap.String("dir", dir),
			zap.Strings("entries", orphans.ToSlice()),
		)
	}

	return out, nil
}

func ingestHint(dir string, fileID uint64, out map[string]keydirEntry) error {
	data, err := os.ReadFile(hintPath(dir, fileID))
	if err != nil {
		return fmt.Errorf("%w: read hint file %d: %v", ErrIO, fileID, err)
	}
	entries, err := decodeHintFile(data)
	if err != nil {
		return fmt.Errorf("decode hint file %d: %w", fileID, err)
	}
	for _, e := range entries {
		out[string(e.key)] = keydirEntry{
			fileID:    fileID,
			valuePos:  int64(e.valuePos),
			valueSize: int64(e.valueSize),
			timestamp: e.timestamp,
		}
	}
	return nil
}

func ingestDataFile(dir string, fileID uint64, out map[string]keydirEntry) error {
	f, err := openSegmentForRead(dir, fileID)
	if err != nil {
		return err
	}
	defer f.Close()

	rs := newRecordScanner(f)
	for rs.scan() {
		rec := rs.cur
		out[string(rec.key)] = keydirEntry{
			fileID:    fileID,
			valuePos:  rec.valuePos,
			valueSize: int64(len(rec.value)),
			timestamp: rec.timestamp,
		}
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("scan segment %d: %w", fileID, err)
	}
	return nil
}

// segmentLiveLength returns the byte length of a data file up to (and
// excluding) a truncated tail record, i.e. the length recovery actually
// trusts. A checksum mismatch on a complete record is returned as an error
// rather than a length.
func segmentLiveLength(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %q: %v", ErrIO, path, err)
	}
	defer f.Close()

	rs := newRecordScanner(f)
	for rs.scan() {
	}
	if err := rs.Err(); err != nil {
		return 0, err
	}
	return rs.end, nil
}
