package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournalInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return j
}

func TestRecordAndListBuilds(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.RecordBuild(ctx, BuildRecord{
		Files:    []string{"part1.gcode", "part2.tpl"},
		FilesRun: 2,
		Moves:    14,
		Duration: 62.5,
		Elapsed:  1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = j.RecordBuild(ctx, BuildRecord{
		Files:       []string{"part1.gcode"},
		Skipped:     1,
		Interrupted: true,
		Error:       "part1.gcode:3: unsupported G18",
	})
	require.NoError(t, err)

	builds, err := j.ListBuilds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, builds, 2)

	latest := builds[0]
	assert.True(t, latest.Interrupted)
	assert.Equal(t, "part1.gcode:3: unsupported G18", latest.Error)
	assert.Equal(t, 1, latest.Skipped)

	first := builds[1]
	assert.Equal(t, id, first.ID)
	assert.Equal(t, []string{"part1.gcode", "part2.tpl"}, first.Files)
	assert.Equal(t, 2, first.FilesRun)
	assert.Equal(t, 14, first.Moves)
	assert.Equal(t, 62.5, first.Duration)
	assert.Equal(t, 1500*time.Millisecond, first.Elapsed)
	assert.False(t, first.Interrupted)
	assert.Empty(t, first.Error)
	assert.True(t, first.CreatedAt.Before(latest.CreatedAt))
}

func TestListBuildsEmpty(t *testing.T) {
	j := newTestJournal(t)

	builds, err := j.ListBuilds(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, builds)
	assert.Empty(t, builds)
}

func TestRecordAndQueryResolutions(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, rec := range []ResolutionRecord{
		{ID: "r1", Hash: "00000000000000aa", Filename: "a.json", Source: "compute", Lookup: "absent", Triangles: 100, Elapsed: 2 * time.Second},
		{ID: "r2", Hash: "00000000000000aa", Filename: "a.json", Source: "cache", Lookup: "hit", Triangles: 100},
		{ID: "r3", Hash: "00000000000000bb", Filename: "b.json", Source: "none", Lookup: "stale", Error: "render: workpiece is empty"},
	} {
		_, err := j.RecordResolution(ctx, rec)
		require.NoError(t, err)
	}

	all, err := j.ListResolutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)
	assert.Equal(t, "render: workpiece is empty", all[0].Error)

	limited, err := j.ListResolutions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byHash, err := j.ResolutionsByHash(ctx, "00000000000000aa")
	require.NoError(t, err)
	require.Len(t, byHash, 2)
	assert.Equal(t, "r2", byHash[0].ID)
	assert.Equal(t, "cache", byHash[0].Source)
	assert.Equal(t, "r1", byHash[1].ID)
	assert.Equal(t, 2*time.Second, byHash[1].Elapsed)
	assert.Equal(t, 100, byHash[1].Triangles)
}

func TestOpenJournalCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.RecordResolution(context.Background(), ResolutionRecord{Hash: "x", Source: "none", Lookup: "absent"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	reopened, err := OpenJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.ListResolutions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
}
