package docstore

import (
	"testing"
	"time"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersisterLoadMissingFile(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)

	db := NewDB(nil)
	defer db.Close()

	p, err := NewPersister(db, fs, "data/documents.json", DefaultFlushDelay, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.Load(), "missing file is the first-run state")
}

func TestPersisterFlushAndReload(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)

	db := NewDB(nil)
	p, err := NewPersister(db, fs, "data/documents.json", DefaultFlushDelay, nil)
	require.NoError(t, err)

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))
	require.NoError(t, db.UpsertTask(&Task{ID: "t1", StageID: "s1", JourneyID: "1", Title: "a"}))
	require.NoError(t, p.Close())
	require.NoError(t, db.Close())

	// Fresh store restores from the flushed file.
	db2 := NewDB(nil)
	defer db2.Close()
	p2, err := NewPersister(db2, fs, "data/documents.json", DefaultFlushDelay, nil)
	require.NoError(t, err)
	defer p2.Close()
	require.NoError(t, p2.Load())

	j, err := db2.GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)
	require.NotNil(t, j)

	task, err := db2.GetTask("t1")
	require.NoError(t, err)
	require.NotNil(t, task)
}

func TestPersisterDebouncedFlush(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)

	db := NewDB(nil)
	defer db.Close()

	p, err := NewPersister(db, fs, "documents.json", 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))

	// Nothing on storage until the debounce window elapses.
	_, statErr := hackpadfs.Stat(fs, "documents.json")
	assert.Error(t, statErr)

	require.Eventually(t, func() bool {
		_, err := hackpadfs.Stat(fs, "documents.json")
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestPersisterCorruptFile(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)
	require.NoError(t, hackpadfs.WriteFullFile(fs, "documents.json", []byte("{nope"), 0644))

	db := NewDB(nil)
	defer db.Close()

	p, err := NewPersister(db, fs, "documents.json", DefaultFlushDelay, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Error(t, p.Load())
}
