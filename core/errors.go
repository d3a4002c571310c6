// Package core implements the Bitcask-style log-structured key/value engine.
package core

import "errors"

var (
	// ErrIO is returned for filesystem/I/O failures: create, open, read,
	// write, sync, remove, read_dir, metadata, flock.
	ErrIO = errors.New("i/o error")

	// ErrKeyNotFound is returned by Get when the key is absent from the keydir.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidArgument is returned for malformed inputs, such as an empty key.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidFileFormat is returned when a data or hint file cannot be
	// parsed beyond clean tail truncation (e.g. a checksum mismatch on a
	// fully-written record).
	ErrInvalidFileFormat = errors.New("invalid file format")

	// ErrDirNotFound is returned when the data directory cannot be created
	// or read.
	ErrDirNotFound = errors.New("data directory not found")

	// ErrLocked is returned by Open when another handle already holds the
	// directory's advisory lock.
	ErrLocked = errors.New("data directory is locked by another handle")
)
