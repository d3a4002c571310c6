package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// segment is a single append-only data file identified by its file_id. Only
// the handle's active segment is ever written to through this handle; all
// others are opened transiently for reads.
type segment struct {
	id   uint64
	file *os.File // nil for closed segments discovered by recovery but not held open
}

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.dat", id))
}

func hintPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.hint", id))
}

// newActiveSegment creates a brand-new, empty segment file and opens it for
// appending. A handle never appends to a pre-existing segment. The file and
// its directory entry are fsynced before the segment is handed back so a
// crash right after Open/Merge can never leave a segment that listSegments
// will find but whose data file doesn't actually exist on disk.
func newActiveSegment(dir string, id uint64) (*segment, error) {
	name := fmt.Sprintf("%d.dat", id)
	path := filepath.Join(dir, name)

	f, err := createFileDurable(dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: create active segment %q: %v", ErrIO, path, err)
	}
	return &segment{id: id, file: f}, nil
}

func openSegmentForRead(dir string, id uint64) (*os.File, error) {
	f, err := os.Open(segmentPath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("%w: open segment %d for read: %v", ErrIO, id, err)
	}
	return f, nil
}

// parseFileID parses the decimal stem of a <file_id>.<ext> name. It returns
// ok=false for anything that isn't a plain nonnegative decimal integer.
func parseFileID(stem string) (uint64, bool) {
	if stem == "" {
		return 0, false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// dirEntry is a single candidate segment discovered while listing a
// directory: its file_id and whether a sibling hint file exists.
type dirEntry struct {
	id       uint64
	hasHint  bool
	unparsed string // non-empty for entries recovery/merge must leave untouched
}

// listSegments enumerates <file_id>.dat files in dir, sorted ascending by
// file_id, alongside whether each has a sibling .hint file. Unparseable
// names are returned separately so callers can warn without touching them.
func listSegments(dir string) (segs []dirEntry, maxID uint64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read dir %q: %v", ErrDirNotFound, dir, err)
	}

	hints := make(map[uint64]bool)
	var candidates []uint64
	var unparsed []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)

		switch ext {
		case ".dat":
			id, ok := parseFileID(stem)
			if !ok {
				unparsed = append(unparsed, name)
				continue
			}
			candidates = append(candidates, id)
			if id > maxID {
				maxID = id
			}
		case ".hint":
			id, ok := parseFileID(stem)
			if ok {
				hints[id] = true
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	seen := make(map[uint64]bool, len(candidates))
	for _, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true
		segs = append(segs, dirEntry{id: id, hasHint: hints[id]})
	}

	for _, name := range unparsed {
		segs = append(segs, dirEntry{unparsed: name})
	}

	return segs, maxID, nil
}

// genFileID implements gen_file_id(dir): max(now_unix_seconds, max existing
// file_id in dir) + 1. This keeps file_ids monotonic (invariant 3) even if
// the wall clock moves backward or several segments are created in the same
// second.
func genFileID(dir string) (uint64, error) {
	_, maxID, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	now := uint64(time.Now().Unix())
	if now > maxID {
		return now + 1, nil
	}
	return maxID + 1, nil
}
