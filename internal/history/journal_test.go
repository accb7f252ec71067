package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/contentsync/internal/backend"
	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/content"
	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/reconciler"
	"github.com/dbsmedya/contentsync/internal/record"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	j, err := NewJournal(db, "contentsync_", logger.NewNop())
	require.NoError(t, err)
	j.now = func() time.Time { return fixedNow }
	j.newID = func() string { return "3f1c2a9e-0000-4000-8000-000000000001" }
	return j, mock
}

func TestNewJournal_Validation(t *testing.T) {
	_, err := NewJournal(nil, "contentsync_", nil)
	assert.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewJournal(db, "bad-prefix", nil)
	assert.Error(t, err)

	j, err := NewJournal(db, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "`run`", j.runTable)
	assert.Equal(t, "`run_item`", j.itemTable)
}

func TestInitializeTables(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `contentsync_run`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `contentsync_run_item`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, j.InitializeTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeTables_Error(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `contentsync_run`")).
		WillReturnError(errors.New("access denied"))

	err := j.InitializeTables(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contentsync_run")
}

func TestStartRun(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contentsync_run` (run_id, collection, run_status, started_at)")).
		WithArgs("3f1c2a9e-0000-4000-8000-000000000001", "team", "running", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	runID, err := j.StartRun(context.Background(), "team")
	require.NoError(t, err)
	assert.Equal(t, "3f1c2a9e-0000-4000-8000-000000000001", runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRun_DefaultIDIsUUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j, err := NewJournal(db, "contentsync_", logger.NewNop())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(1, 1))
	runID, err := j.StartRun(context.Background(), "team")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, runID)
}

func TestRecordItem(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contentsync_run_item`")).
		WithArgs("run-1", "bob", "Bob", "CREATE_IN_BACKEND", "create", "", false, "item mutation failed: boom").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contentsync_run_item`")).
		WithArgs("run-1", "x", "Alice", "USE_BACKEND", "none", "", true, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, j.RecordItem(context.Background(), "run-1", reconciler.ItemResult{
		Name: "Bob", Key: "bob", Resolution: resolution.CreateInBackend, Op: resolution.OpCreate,
		Error: "item mutation failed: boom",
	}))
	require.NoError(t, j.RecordItem(context.Background(), "run-1", reconciler.ItemResult{
		Name: "Alice", Key: "x", Resolution: resolution.UseBackend, Op: resolution.OpNone, Success: true,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRun_Statuses(t *testing.T) {
	before := &differ.Report{TotalDifferences: 3}

	tests := []struct {
		name    string
		result  *reconciler.SyncResult
		runErr  error
		status  string
		message string
	}{
		{
			name:    "succeeded",
			result:  &reconciler.SyncResult{Before: before, Batch: &reconciler.BatchResult{Success: true, Applied: 3, Message: "3 of 3 resolutions applied"}},
			status:  "succeeded",
			message: "3 of 3 resolutions applied",
		},
		{
			name:    "partial",
			result:  &reconciler.SyncResult{Before: before, Batch: &reconciler.BatchResult{Applied: 2, Failed: 1, Message: "2 of 3 resolutions applied"}},
			status:  "partial",
			message: "2 of 3 resolutions applied",
		},
		{
			name:    "analysis failed",
			runErr:  errors.New("analysis failed"),
			status:  "failed",
			message: "analysis failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, mock := newTestJournal(t)

			total, applied, failed := 0, 0, 0
			if tt.result != nil {
				total, applied, failed = 3, tt.result.Batch.Applied, tt.result.Batch.Failed
			}
			mock.ExpectExec(regexp.QuoteMeta("UPDATE `contentsync_run` SET run_status = ?")).
				WithArgs(tt.status, total, applied, failed, tt.message, fixedNow, "run-1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, j.FinishRun(context.Background(), "run-1", tt.result, tt.runErr))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFinishRun_UnknownRun(t *testing.T) {
	j, mock := newTestJournal(t)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 0))

	err := j.FinishRun(context.Background(), "nope", nil, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	j, mock := newTestJournal(t)

	completed := fixedNow.Add(2 * time.Second)
	rows := sqlmock.NewRows([]string{"run_id", "collection", "run_status", "total_differences", "applied", "failed", "message", "started_at", "completed_at"}).
		AddRow("run-2", "team", "partial", 3, 2, 1, "2 of 3 resolutions applied", fixedNow, completed).
		AddRow("run-1", "team", "running", 0, 0, 0, "", fixedNow.Add(-time.Hour), nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `contentsync_run` WHERE collection = ? ORDER BY started_at DESC LIMIT ?")).
		WithArgs("team", 20).
		WillReturnRows(rows)

	runs, err := j.ListRuns(context.Background(), "team", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunStatusPartial, runs[0].Status)
	assert.Equal(t, 1, runs[0].Failed)
	require.NotNil(t, runs[0].CompletedAt)
	assert.True(t, completed.Equal(*runs[0].CompletedAt))
	assert.Nil(t, runs[1].CompletedAt)
}

func TestGetRun(t *testing.T) {
	j, mock := newTestJournal(t)

	rows := sqlmock.NewRows([]string{"run_id", "collection", "run_status", "total_differences", "applied", "failed", "message", "started_at", "completed_at"}).
		AddRow("run-2", "services", "partial", 3, 2, 1, "2 of 3 resolutions applied", fixedNow, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM `contentsync_run` WHERE run_id = ?")).
		WithArgs("run-2").
		WillReturnRows(rows)

	run, err := j.GetRun(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, "services", run.Collection)
	assert.Equal(t, RunStatusPartial, run.Status)
	assert.Nil(t, run.CompletedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `contentsync_run` WHERE run_id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err := j.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestItems_FailedOnly(t *testing.T) {
	j, mock := newTestJournal(t)

	rows := sqlmock.NewRows([]string{"run_id", "item_key", "item_name", "resolution", "op", "record_id", "success", "error_message"}).
		AddRow("run-1", "bob", "Bob", "CREATE_IN_BACKEND", "create", "", false, "boom")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE run_id = ? AND success = 0 ORDER BY id ASC")).
		WithArgs("run-1").
		WillReturnRows(rows)

	items, err := j.Items(context.Background(), "run-1", true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "bob", items[0].Key)
	assert.False(t, items[0].Success)
	assert.Equal(t, "boom", items[0].Error)
}

func TestItems_QueryError(t *testing.T) {
	j, mock := newTestJournal(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("lost connection"))

	_, err := j.Items(context.Background(), "run-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lost connection")
}

func newTeamOrchestrator(t *testing.T) *reconciler.Orchestrator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Collections = map[string]config.CollectionConfig{"team": {KeyBy: "id"}}

	source := content.NewStaticSource(map[string][]record.Raw{
		"team": {{"id": "1", "name": "Alice", "title": "CEO"}},
	})
	store := backend.NewMemoryStore()
	store.Seed("team", []record.Raw{{"id": "1", "name": "Alice", "title": "CTO"}})

	o, err := reconciler.NewOrchestrator(cfg, "team", source, store, logger.NewNop())
	require.NoError(t, err)
	return o
}

func TestTrack_JournalsRun(t *testing.T) {
	j, mock := newTestJournal(t)
	o := newTeamOrchestrator(t)
	runID := "3f1c2a9e-0000-4000-8000-000000000001"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contentsync_run` ")).
		WithArgs(runID, "team", "running", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contentsync_run_item`")).
		WithArgs(runID, "1", "Alice", "USE_FRONTEND", "update", "1", true, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `contentsync_run`")).
		WithArgs("succeeded", 1, 1, 0, sqlmock.AnyArg(), fixedNow, runID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, gotID, err := j.Track(context.Background(), o, func(ctx context.Context) (*reconciler.SyncResult, error) {
		return o.Sync(ctx, map[string]resolution.Resolution{"1": resolution.UseFrontend})
	})
	require.NoError(t, err)
	assert.Equal(t, runID, gotID)
	assert.True(t, result.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrack_StartFailureStillSyncs(t *testing.T) {
	j, mock := newTestJournal(t)
	o := newTeamOrchestrator(t)

	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("read only"))

	result, runID, err := j.Track(context.Background(), o, func(ctx context.Context) (*reconciler.SyncResult, error) {
		return o.Sync(ctx, map[string]resolution.Resolution{"1": resolution.UseFrontend})
	})
	require.NoError(t, err)
	assert.Empty(t, runID)
	assert.True(t, result.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrack_NilJournal(t *testing.T) {
	var j *Journal
	o := newTeamOrchestrator(t)

	result, runID, err := j.Track(context.Background(), o, o.SyncSuggested)
	require.NoError(t, err)
	assert.Empty(t, runID)
	assert.True(t, result.Batch.Success)
}
