package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// createFileDurable creates name in dir and fsyncs both the file and the
// directory entry before returning, so the new file is guaranteed to survive
// a crash immediately afterward. Used for new segment files (§4.3): a
// segment that listSegments can see must actually be on disk.
func createFileDurable(dir, name string) (*os.File, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %v", ErrIO, path, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: sync %q: %v", ErrIO, path, err)
	}

	dfd, err := os.Open(dir)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: open dir %q: %v", ErrIO, dir, err)
	}
	defer dfd.Close() // nolint:errcheck

	if err := dfd.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: sync dir %q: %v", ErrIO, dir, err)
	}

	return f, nil
}
