package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Merge implements §4.5: it rewrites every live key into a single new
// segment plus a hint file, adopts that segment as the new active segment,
// and deletes the superseded inputs. It must not run concurrently with a
// Put/Delete on the same handle; the handle enforces this by holding segMu
// for the whole operation.
func (db *DB) Merge() (rerr error) {
	db.segMu.Lock()
	defer db.segMu.Unlock()

	snapshot, err := buildKeydir(db.dir, db.logger)
	if err != nil {
		return fmt.Errorf("merge: build keydir: %w", err)
	}

	mergeID, err := genFileID(db.dir)
	if err != nil {
		return fmt.Errorf("merge: allocate file id: %w", err)
	}

	mergeSeg, err := newActiveSegment(db.dir, mergeID)
	if err != nil {
		return fmt.Errorf("merge: create merge segment: %w", err)
	}

	defer func() {
		if rerr != nil {
			if err := mergeSeg.file.Close(); err != nil {
				db.logger.Warn("merge: close aborted merge segment", zap.Error(err))
			}
			if err := os.Remove(segmentPath(db.dir, mergeID)); err != nil {
				db.logger.Warn("merge: remove aborted merge segment", zap.Error(err))
			}
			_ = os.Remove(hintPath(db.dir, mergeID))
		}
	}()

	hint := &hintFileBuilder{}
	writePos := int64(0)
	newIndex := make(map[string]keydirEntry, len(snapshot))

	for key := range snapshot {
		value, err := db.getLocked([]byte(key))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				// Deleted from the live index after the snapshot but before
				// we got to it; nothing to carry forward.
				continue
			}
			return fmt.Errorf("merge: read value for %q: %w", key, err)
		}
		if string(value) == Tombstone {
			continue
		}

		timestamp := nowUnix()
		buf, valueOff := encodeRecord(timestamp, []byte(key), value)

		if _, err := mergeSeg.file.Write(buf); err != nil {
			return fmt.Errorf("%w: merge: write record for %q: %v", ErrIO, key, err)
		}

		valuePos := writePos + int64(valueOff)
		hint.append(timestamp, []byte(key), uint64(len(value)), uint64(valuePos))

		newIndex[key] = keydirEntry{
			fileID:    mergeID,
			valuePos:  valuePos,
			valueSize: int64(len(value)),
			timestamp: timestamp,
		}

		writePos += int64(len(buf))
	}

	if err := mergeSeg.file.Sync(); err != nil {
		return fmt.Errorf("%w: merge: sync merge segment %d: %v", ErrIO, mergeID, err)
	}

	if err := atomic.WriteFile(hintPath(db.dir, mergeID), bytes.NewReader(hint.bytes())); err != nil {
		return fmt.Errorf("%w: merge: write hint file %d: %v", ErrIO, mergeID, err)
	}

	oldActiveFileID := db.activeFileID
	oldActive := db.active

	db.active = mergeSeg
	db.activeFileID = mergeID
	db.writerPos = writePos
	db.kd.replaceAll(newIndex)

	if err := oldActive.file.Close(); err != nil {
		db.logger.Warn("merge: close superseded active segment", zap.Uint64("file_id", oldActiveFileID), zap.Error(err))
	}

	db.cleanupSuperseded(mergeID)

	return nil
}

// cleanupSuperseded deletes every segment/hint file in the directory other
// than the new merge id (§4.5 step 6). This includes the handle's pre-merge
// active segment: Merge holds segMu for its entire duration, so no writes
// can have landed there since the snapshot, and its live keys (if any) were
// already folded into the merge segment above. Keeping it around would let
// any tombstone it still holds resurrect a deleted key on reopen, since
// recovery does not filter tombstones out of the keydir. Unparseable
// entries are left untouched.
func (db *DB) cleanupSuperseded(mergeID uint64) {
	segs, _, err := listSegments(db.dir)
	if err != nil {
		db.logger.Warn("merge: list segments for cleanup", zap.Error(err))
		return
	}

	var errs error
	for _, s := range segs {
		if s.unparsed != "" || s.id == mergeID {
			continue
		}
		if err := os.Remove(segmentPath(db.dir, s.id)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: remove segment %d: %v", ErrIO, s.id, err))
		}
		if s.hasHint {
			if err := os.Remove(hintPath(db.dir, s.id)); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: remove hint %d: %v", ErrIO, s.id, err))
			}
		}
	}

	if errs != nil {
		db.logger.Warn("merge: cleanup of superseded segments had errors", zap.Error(errs))
	}
}

// tryMerge runs Merge in the background, at most once concurrently,
// reporting any error on MergeErrors() (§10.7).
func (db *DB) tryMerge() {
	select {
	case db.mergeSem <- struct{}{}:
		go func() {
			defer func() { <-db.mergeSem }()
			if err := db.Merge(); err != nil {
				select {
				case db.mergeErr <- err:
				default:
				}
			}
		}()
	default:
		// a merge is already in flight
	}
}
