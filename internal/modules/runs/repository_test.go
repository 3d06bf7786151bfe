package runs

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinops/stratrand/internal/modules/probability"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE runs (
			id             TEXT PRIMARY KEY,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER,
			status         TEXT NOT NULL,
			subjects       INTEGER NOT NULL DEFAULT 0,
			assigned       INTEGER NOT NULL DEFAULT 0,
			unassigned     TEXT NOT NULL DEFAULT '[]',
			skipped        TEXT NOT NULL DEFAULT '[]',
			error          TEXT NOT NULL DEFAULT '',
			index_snapshot BLOB
		)`)
	require.NoError(t, err)

	return db
}

func sampleRun(id string, startedAt time.Time) *Run {
	return &Run{
		ID:         id,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
		Status:     StatusCompleted,
		Subjects:   10,
		Assigned:   8,
		Unassigned: []string{"1004", "1007"},
		Skipped:    []string{},
	}
}

func TestCreateAndGetByID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	snapshot, err := EncodeIndexSnapshot(probability.Index{
		"1|2": {"1": 0.75, "2": 0.25},
	})
	require.NoError(t, err)

	run := sampleRun("run-1", started)
	run.IndexSnapshot = snapshot
	require.NoError(t, repo.Create(run))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 10, got.Subjects)
	assert.Equal(t, 8, got.Assigned)
	assert.Equal(t, []string{"1004", "1007"}, got.Unassigned)
	assert.Equal(t, []string{}, got.Skipped)
	assert.Equal(t, started, got.StartedAt)

	index, err := DecodeIndexSnapshot(got.IndexSnapshot)
	require.NoError(t, err)
	assert.Equal(t, 0.75, index["1|2"]["1"])
	assert.Equal(t, 0.25, index["1|2"]["2"])
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.GetByID("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.Latest()
	require.NoError(t, err)
	assert.Nil(t, got, "no runs recorded yet")

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(sampleRun("run-1", base)))
	require.NoError(t, repo.Create(sampleRun("run-2", base.Add(time.Hour))))

	got, err = repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-2", got.ID)
}

func TestList_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, repo.Create(sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	result, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "run-3", result[0].ID)
	assert.Equal(t, "run-2", result[1].ID)
}

func TestCreate_FailedRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	run := &Run{
		ID:         "run-err",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		FinishedAt: time.Now().UTC().Truncate(time.Second),
		Status:     StatusFailed,
		Unassigned: []string{},
		Skipped:    []string{},
		Error:      "criteria field mismatch",
	}
	require.NoError(t, repo.Create(run))

	got, err := repo.GetByID("run-err")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "criteria field mismatch", got.Error)
	assert.Nil(t, got.IndexSnapshot)
}
