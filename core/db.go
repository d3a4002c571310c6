package core

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DB is a single-owner handle onto a Bitcask data directory. Concurrent
// writes from multiple goroutines must be externally sequenced; concurrent
// reads share segMu's read lock and run alongside each other, while a write,
// Sync or Merge holds segMu exclusively and reads wait for it (§10.4).
type DB struct {
	dir string

	segMu        sync.RWMutex // guards active/activeFileID/writerPos and serializes writers vs Merge
	active       *segment
	activeFileID uint64
	writerPos    int64

	kd *keydir

	fsync              bool
	keydirShards       int
	autoMergeThreshold int
	logger             *zap.Logger

	lock *dirLock

	mergeSem chan struct{}
	mergeErr chan error
}

// Option configures a DB at Open time.
type Option func(*DB)

// WithSync enables fsync after every Put/Delete, trading throughput for
// per-write durability.
func WithSync(b bool) Option {
	return func(db *DB) { db.fsync = b }
}

// WithKeydirShards sets the number of keydir shards (§10.4). Default 16.
func WithKeydirShards(n int) Option {
	return func(db *DB) { db.keydirShards = n }
}

// WithAutoMergeThreshold enables the §10.7 auto-merge policy: after Open's
// recovery, if the directory holds more than n segments, a merge is kicked
// off asynchronously. 0 (default) disables it.
func WithAutoMergeThreshold(n int) Option {
	return func(db *DB) { db.autoMergeThreshold = n }
}

// WithLogger attaches a structured logger. Defaults to zap's no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) { db.logger = l }
}

func nowUnix() uint64 { return uint64(time.Now().Unix()) }

// Open ensures dir exists, allocates a new active segment, reconstructs the
// keydir by scanning dir (§4.4), and returns a ready handle.
func Open(dir string, opts ...Option) (db *DB, err error) {
	db = &DB{
		dir:          dir,
		keydirShards: 16,
		logger:       zap.NewNop(),
		mergeSem:     make(chan struct{}, 1),
		mergeErr:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(db)
	}

	// Keep a reference of our own: the error paths below return a nil db.
	h := db
	defer func() {
		if err != nil {
			h.abortOpen()
		}
	}()

	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return nil, fmt.Errorf("%w: mkdir %q: %v", ErrDirNotFound, dir, mkErr)
	}

	db.lock, err = acquireDirLock(dir)
	if err != nil {
		return nil, err
	}

	fileID, err := genFileID(dir)
	if err != nil {
		return nil, err
	}

	db.active, err = newActiveSegment(dir, fileID)
	if err != nil {
		return nil, err
	}
	db.activeFileID = fileID
	db.writerPos = 0

	snapshot, err := buildKeydir(dir, db.logger)
	if err != nil {
		return nil, err
	}
	db.kd = newKeydir(db.keydirShards)
	db.kd.replaceAll(snapshot)

	if db.autoMergeThreshold > 0 {
		segs, _, lsErr := listSegments(dir)
		if lsErr == nil && len(segs) > db.autoMergeThreshold {
			db.tryMerge()
		}
	}

	return db, nil
}

func (db *DB) abortOpen() {
	if db.active != nil && db.active.file != nil {
		_ = db.active.file.Close()
	}
	if db.lock != nil {
		_ = db.lock.release()
	}
}

// Put appends a new data record to the active segment and updates the
// keydir. Empty keys are rejected. On a partial write the keydir is left
// unchanged.
func (db *DB) Put(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}

	db.segMu.Lock()
	defer db.segMu.Unlock()

	return db.appendLocked(key, value)
}

// appendLocked writes a record to the active segment and updates the
// keydir. Callers must hold segMu for writing.
func (db *DB) appendLocked(key, value []byte) error {
	timestamp := nowUnix()
	buf, valueOff := encodeRecord(timestamp, key, value)

	off := db.writerPos
	n, err := db.active.file.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: write record to segment %d: %v", ErrIO, db.activeFileID, err)
	}
	db.writerPos += int64(n)

	if db.fsync {
		if err := db.active.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync segment %d: %v", ErrIO, db.activeFileID, err)
		}
	}

	db.kd.set(string(key), keydirEntry{
		fileID:    db.activeFileID,
		valuePos:  off + int64(valueOff),
		valueSize: int64(len(value)),
		timestamp: timestamp,
	})

	return nil
}

// Get looks up key in the keydir and, if present, reads its value range
// from the owning segment.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.segMu.RLock()
	defer db.segMu.RUnlock()
	return db.getLocked(key)
}

// getLocked is Get's body without locking, for use by Merge (which already
// holds segMu for writing and needs the current handle's view of each key,
// per §4.5 step 4).
func (db *DB) getLocked(key []byte) ([]byte, error) {
	e, ok := db.kd.get(string(key))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return db.readValue(e)
}

func (db *DB) readValue(e keydirEntry) ([]byte, error) {
	if e.fileID == db.activeFileID {
		buf := make([]byte, e.valueSize)
		if _, err := db.active.file.ReadAt(buf, e.valuePos); err != nil {
			return nil, fmt.Errorf("%w: read value from active segment %d: %v", ErrIO, e.fileID, err)
		}
		return buf, nil
	}

	f, err := openSegmentForRead(db.dir, e.fileID)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, e.valueSize)
	if _, err := f.ReadAt(buf, e.valuePos); err != nil {
		return nil, fmt.Errorf("%w: read value from segment %d: %v", ErrIO, e.fileID, err)
	}
	return buf, nil
}

// Delete is equivalent to Put(key, Tombstone). The keydir entry keeps
// pointing at the tombstone record until a merge physically drops it.
func (db *DB) Delete(key []byte) error {
	return db.Put(key, []byte(Tombstone))
}

// ListKeys returns a snapshot of live keys. Ordering is unspecified.
func (db *DB) ListKeys() [][]byte {
	return db.kd.keys()
}

// Sync forces the active segment's contents to durable storage.
func (db *DB) Sync() error {
	db.segMu.Lock()
	defer db.segMu.Unlock()
	if err := db.active.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync segment %d: %v", ErrIO, db.activeFileID, err)
	}
	return nil
}

// Close flushes and releases the active segment; the keydir is discarded.
func (db *DB) Close() error {
	db.segMu.Lock()
	defer db.segMu.Unlock()

	var err error
	if syncErr := db.active.file.Sync(); syncErr != nil {
		err = fmt.Errorf("%w: sync segment %d: %v", ErrIO, db.activeFileID, syncErr)
	}
	if closeErr := db.active.file.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("%w: close segment %d: %v", ErrIO, db.activeFileID, closeErr)
	}
	if lockErr := db.lock.release(); lockErr != nil && err == nil {
		err = fmt.Errorf("%w: release lock: %v", ErrIO, lockErr)
	}
	return err
}

// MergeErrors reports errors from asynchronous auto-merges triggered by
// WithAutoMergeThreshold (§10.7).
func (db *DB) MergeErrors() <-chan error { return db.mergeErr }
