package core

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestMergeCondensesOverwrites(t *testing.T) {
	db, dir := setupTempDB(t)

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	require.NoError(t, db.Put([]byte("k"), []byte("v2")))
	require.NoError(t, db.Put([]byte("k"), []byte("v3")))

	require.NoError(t, db.Merge())

	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), val)

	// cleanupSuperseded deletes every segment but the merge one, including
	// the handle's pre-merge active segment, so exactly one .dat file (with
	// its .hint) remains.
	segs, _, err := listSegments(dir)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.True(t, segs[0].hasHint)
}

func TestMergeDropsTombstones(t *testing.T) {
	db, _ := setupTempDB(t)

	require.NoError(t, db.Put([]byte("keep"), []byte("v")))
	require.NoError(t, db.Put([]byte("gone"), []byte("v")))
	require.NoError(t, db.Delete([]byte("gone")))

	require.NoError(t, db.Merge())

	_, err := db.Get([]byte("gone"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	val, err := db.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)

	require.NotContains(t, keyStrings(db.ListKeys()), "gone")
}

func TestMergeSurvivesReopen(t *testing.T) {
	db, dir := setupTempDB(t)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))
	require.NoError(t, db.Delete([]byte("a")))
	require.NoError(t, db.Merge())
	require.NoError(t, db.Close())

	db2, err := Open(dir)
	require.NoError(t, err)
	defer db2.Close() //nolint:errcheck

	_, err = db2.Get([]byte("a"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	val, err := db2.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), val)
}

// TestMergeHintValuePosMatchesDataFile independently re-scans the merge
// segment's data file and asserts that the hint file's recorded value_pos
// for every key lines up exactly with where the scan says the value starts,
// catching any off-by-one in the value_pos arithmetic.
func TestMergeHintValuePosMatchesDataFile(t *testing.T) {
	db, dir := setupTempDB(t)

	want := map[string]string{"a": "1", "bb": "22", "ccc": "333"}
	for k, v := range want {
		require.NoError(t, db.Put([]byte(k), []byte(v)))
	}
	require.NoError(t, db.Merge())

	entries, _, err := listSegments(dir)
	require.NoError(t, err)

	var mergeID uint64
	var found bool
	for _, e := range entries {
		if e.hasHint {
			mergeID = e.id
			found = true
		}
	}
	require.True(t, found, "expected exactly one segment with a hint file")

	f, err := openSegmentForRead(dir, mergeID)
	require.NoError(t, err)
	defer f.Close()

	rs := newRecordScanner(f)
	fromScan := make(map[string]int64)
	for rs.scan() {
		fromScan[string(rs.cur.key)] = rs.cur.valuePos
	}
	require.NoError(t, rs.Err())

	hintData, err := os.ReadFile(hintPath(dir, mergeID))
	require.NoError(t, err)
	hintEntries, err := decodeHintFile(hintData)
	require.NoError(t, err)

	fromHint := make(map[string]int64, len(hintEntries))
	for _, e := range hintEntries {
		fromHint[string(e.key)] = int64(e.valuePos)
	}

	if diff := cmp.Diff(fromScan, fromHint, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("hint value_pos mismatch vs independent scan (-scan +hint):\n%s", diff)
	}
}

func TestFileIDMonotonicAcrossMerges(t *testing.T) {
	db, dir := setupTempDB(t)

	firstID := db.activeFileID

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Merge())
	require.Greater(t, db.activeFileID, firstID)

	secondID := db.activeFileID
	require.NoError(t, db.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, db.Merge())
	require.Greater(t, db.activeFileID, secondID)

	_, maxID, err := listSegments(dir)
	require.NoError(t, err)
	require.Equal(t, db.activeFileID, maxID)
}

func TestMergeManyKeysRoundTrip(t *testing.T) {
	db, _ := setupTempDB(t)

	const n = 200
	for i := 0; i < n; i++ {
		k, v := fmt.Sprintf("k%04d", i), fmt.Sprintf("v%04d", i)
		require.NoError(t, db.Put([]byte(k), []byte(v)))
		if i%3 == 0 {
			require.NoError(t, db.Put([]byte(k), []byte(v+"-updated")))
		}
	}
	require.NoError(t, db.Merge())

	for i := 0; i < n; i++ {
		k, want := fmt.Sprintf("k%04d", i), fmt.Sprintf("v%04d", i)
		if i%3 == 0 {
			want += "-updated"
		}
		got, err := db.Get([]byte(k))
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func keyStrings(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
