package reconciler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/contentsync/internal/backend"
	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/content"
	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/record"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

type fixture struct {
	source *content.StaticSource
	store  *backend.MemoryStore
	orch   *Orchestrator
}

func newFixture(t *testing.T, frontend, backendRecords []record.Raw, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Collections = map[string]config.CollectionConfig{"team": {}}
	for _, m := range mutate {
		m(cfg)
	}

	source := content.NewStaticSource(map[string][]record.Raw{"team": frontend})
	store := backend.NewMemoryStore()
	store.Seed("team", backendRecords)

	orch, err := NewOrchestrator(cfg, "team", source, store, logger.NewNop())
	require.NoError(t, err)
	return &fixture{source: source, store: store, orch: orch}
}

type sourceFunc func(ctx context.Context, collection string) ([]record.Raw, error)

func (f sourceFunc) Load(ctx context.Context, collection string) ([]record.Raw, error) {
	return f(ctx, collection)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Collections = map[string]config.CollectionConfig{
		"team": {},
		"news": {ResolutionPolicy: config.PolicyConfig{Mismatch: "CREATE_IN_BACKEND"}},
	}
	src := content.NewStaticSource(nil)
	store := backend.NewMemoryStore()

	tests := []struct {
		name       string
		cfg        *config.Config
		collection string
		source     content.Source
		store      backend.Store
	}{
		{"nil config", nil, "team", src, store},
		{"nil source", cfg, "team", nil, store},
		{"nil store", cfg, "team", src, nil},
		{"unknown collection", cfg, "jobs", src, store},
		{"illegal policy", cfg, "news", src, store},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(tt.cfg, tt.collection, tt.source, tt.store, nil)
			assert.Error(t, err)
		})
	}

	orch, err := NewOrchestrator(cfg, "team", src, store, nil)
	require.NoError(t, err)
	assert.Equal(t, "team", orch.Collection())
	assert.Equal(t, resolution.DefaultPolicy(), orch.Policy())
}

func TestAnalyze_EmptyCollections(t *testing.T) {
	f := newFixture(t, []record.Raw{}, nil)

	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalDifferences)
	assert.Empty(t, report.Differences)
	assert.Equal(t, map[differ.Kind]int{
		differ.MissingInBackend:  0,
		differ.MissingInFrontend: 0,
		differ.Mismatch:          0,
	}, report.ByType)
	assert.Same(t, report, f.orch.LastReport())
}

func TestAnalyze_UsesCollectionOptions(t *testing.T) {
	f := newFixture(t,
		[]record.Raw{{"id": "local-1", "name": "Alice", "title": "CTO", "phone": "1"}},
		[]record.Raw{{"id": "9", "name": "alice", "title": "CTO", "phone": "2"}},
		func(c *config.Config) {
			c.Collections["team"] = config.CollectionConfig{KeyBy: "name", IgnoreFields: []string{"phone"}}
		},
	)

	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalDifferences)
	d := report.Differences[0]
	assert.Equal(t, differ.Mismatch, d.Kind)
	assert.Equal(t, "alice", d.Key)
	require.Len(t, d.FieldDiffs, 1)
	assert.Equal(t, "name", d.FieldDiffs[0].Field)
}

func TestAnalyze_FetchFailures(t *testing.T) {
	t.Run("backend down", func(t *testing.T) {
		f := newFixture(t, []record.Raw{}, nil)
		f.store.FailOn(backend.OpList, "", errors.New("connection refused"))

		report, err := f.orch.Analyze(context.Background())
		assert.Nil(t, report)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFetchFailure)

		var ae *AnalysisError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, SideBackend, ae.Side)
		assert.Nil(t, f.orch.LastReport(), "no partial report is kept")
	})

	t.Run("frontend collection missing", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Collections = map[string]config.CollectionConfig{"team": {}}
		orch, err := NewOrchestrator(cfg, "team", content.NewStaticSource(nil), backend.NewMemoryStore(), logger.NewNop())
		require.NoError(t, err)

		_, err = orch.Analyze(context.Background())
		assert.ErrorIs(t, err, ErrFetchFailure)
		assert.ErrorIs(t, err, content.ErrCollectionNotFound)
	})
}

func TestAnalyze_ShapeFailures(t *testing.T) {
	t.Run("backend malformed", func(t *testing.T) {
		f := newFixture(t, []record.Raw{}, nil)
		f.store.FailOn(backend.OpList, "", fmt.Errorf("decode: %w", backend.ErrMalformedResponse))

		_, err := f.orch.Analyze(context.Background())
		assert.ErrorIs(t, err, ErrShapeFailure)
		assert.NotErrorIs(t, err, ErrFetchFailure)
	})

	t.Run("frontend malformed", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Collections = map[string]config.CollectionConfig{"team": {}}
		src := sourceFunc(func(ctx context.Context, collection string) ([]record.Raw, error) {
			return nil, &content.ShapeError{Collection: collection, Cause: errors.New("expected a list")}
		})
		orch, err := NewOrchestrator(cfg, "team", src, backend.NewMemoryStore(), logger.NewNop())
		require.NoError(t, err)

		_, err = orch.Analyze(context.Background())
		assert.ErrorIs(t, err, ErrShapeFailure)

		var ae *AnalysisError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, SideFrontend, ae.Side)
		assert.Contains(t, err.Error(), `analysis of "team" failed`)
	})
}

// Frontend has Alice, backend has none: create, then re-diff shows nothing for her.
func TestScenario_CreateInBackendConverges(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "Alice", "title": "CTO"}}, nil)

	result, err := f.orch.Sync(context.Background(), map[string]resolution.Resolution{
		"alice": resolution.CreateInBackend,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Equal(t, 1, result.Before.TotalDifferences)
	assert.Equal(t, differ.MissingInBackend, result.Before.Differences[0].Kind)
	assert.True(t, result.Batch.Success)
	assert.Equal(t, "1 of 1 resolutions applied", result.Batch.Message)
	assert.Equal(t, "1", result.Batch.Results[0].ID)

	stored := f.store.Records("team")
	require.Len(t, stored, 1)
	assert.Equal(t, "Alice", stored[0]["name"])
	assert.Equal(t, "CTO", stored[0]["title"])

	_, stillThere := result.After.Find("alice")
	assert.False(t, stillThere)
	assert.Equal(t, 0, result.After.TotalDifferences)
	assert.Equal(t, 1, result.Verification.Converged)
	assert.True(t, result.Success)
}

func TestScenario_KeyByNameWithLocalIDs(t *testing.T) {
	f := newFixture(t, []record.Raw{{"id": "x", "name": "Alice", "title": "CTO"}}, nil,
		func(c *config.Config) { c.Collections["team"] = config.CollectionConfig{KeyBy: "name"} })

	result, err := f.orch.Sync(context.Background(), map[string]resolution.Resolution{
		"alice": resolution.CreateInBackend,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.After.TotalDifferences)
}

// Static content keeps its own ids; the created record gets a backend id and is
// still correlated by name, so a second sync has nothing left to do.
func TestScenario_LocalIDCreateConvergesUnderDefaultKeys(t *testing.T) {
	f := newFixture(t, []record.Raw{{"id": "x", "name": "Alice", "title": "CTO"}}, nil)

	result, err := f.orch.Sync(context.Background(), map[string]resolution.Resolution{
		"x": resolution.CreateInBackend,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Before.TotalDifferences)
	d := result.Before.Differences[0]
	assert.Equal(t, differ.MissingInBackend, d.Kind)
	assert.Equal(t, "x", d.Key)

	stored := f.store.Records("team")
	require.Len(t, stored, 1)
	assert.Equal(t, "Alice", stored[0]["name"])
	assert.Equal(t, "CTO", stored[0]["title"])

	_, stillThere := result.After.Find("x")
	assert.False(t, stillThere)
	assert.Equal(t, 0, result.After.TotalDifferences)
	assert.True(t, result.Success)

	again, err := f.orch.SyncSuggested(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Before.TotalDifferences)
	assert.Len(t, f.store.Records("team"), 1)
}

// Mismatch resolved USE_BACKEND leaves the backend alone and the mismatch in place.
func TestScenario_UseBackendIsNoOp(t *testing.T) {
	f := newFixture(t,
		[]record.Raw{{"id": "x", "name": "Alice", "title": "CTO"}},
		[]record.Raw{{"id": "x", "name": "Alice", "title": "CIO"}},
	)

	result, err := f.orch.Sync(context.Background(), map[string]resolution.Resolution{
		"x": resolution.UseBackend,
	})
	require.NoError(t, err)

	d, ok := result.Before.Find("x")
	require.True(t, ok)
	assert.Equal(t, []differ.FieldDiff{{Field: "title", FrontendValue: "CTO", BackendValue: "CIO"}}, d.FieldDiffs)

	assert.Equal(t, 0, f.store.MutationCount())
	after, ok := result.After.Find("x")
	require.True(t, ok)
	assert.Equal(t, d.FieldDiffs, after.FieldDiffs)
	assert.Equal(t, 1, result.Verification.Unchanged)
	assert.True(t, result.Success)
}

// A backend-only record cannot be created in the backend.
func TestScenario_IllegalResolutionRejectedPerItem(t *testing.T) {
	f := newFixture(t, []record.Raw{}, []record.Raw{{"id": "7", "name": "Zed"}})

	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, differ.MissingInFrontend, report.Differences[0].Kind)

	batch := f.orch.ApplyBatch(context.Background(), report, map[string]resolution.Resolution{
		"7": resolution.CreateInBackend,
	})
	assert.False(t, batch.Success)
	require.Len(t, batch.Results, 1)
	assert.False(t, batch.Results[0].Success)
	assert.ErrorIs(t, batch.Results[0].Err, resolution.ErrInvalidResolution)
	assert.Contains(t, batch.Results[0].Error, "CREATE_IN_BACKEND is not allowed")
	assert.Equal(t, 0, f.store.MutationCount())
}

// Item 2 of 3 fails; items 1 and 3 still run.
func TestScenario_PartialFailureContained(t *testing.T) {
	f := newFixture(t, []record.Raw{
		{"name": "Alice"},
		{"name": "Bob"},
		{"name": "Carol"},
	}, nil)
	f.store.FailOn(backend.OpCreate, "Bob", errors.New("connection reset"))

	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)

	batch := f.orch.ApplyBatch(context.Background(), report, f.orch.Policy().SuggestAll(report))
	assert.False(t, batch.Success)
	require.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)
	assert.True(t, batch.Results[2].Success)
	assert.Equal(t, "Bob", batch.Results[1].Name)
	assert.ErrorIs(t, batch.Results[1].Err, ErrItemMutation)
	assert.Contains(t, batch.Results[1].Error, "connection reset")
	assert.Equal(t, "2 of 3 resolutions applied", batch.Message)
	assert.Len(t, f.store.Records("team"), 2)
}

func TestSync_FailedBatchSkipsVerification(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "Alice"}}, nil)
	f.store.FailOn(backend.OpCreate, "Alice", errors.New("boom"))

	result, err := f.orch.Sync(context.Background(), map[string]resolution.Resolution{
		"alice": resolution.CreateInBackend,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, result.After)
	assert.Nil(t, result.Verification)
}

func TestSync_AnalysisFailureReturnsNoResult(t *testing.T) {
	f := newFixture(t, []record.Raw{}, nil)
	f.store.FailOn(backend.OpList, "", errors.New("down"))

	result, err := f.orch.Sync(context.Background(), nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrFetchFailure)
}

// Mutated keys shrink, no-op keys stay as they were.
func TestSyncSuggested_ConvergenceLaw(t *testing.T) {
	f := newFixture(t,
		[]record.Raw{
			{"name": "Alice", "title": "CTO"},
			{"id": "2", "name": "Bob", "title": "CEO", "skills": []any{"go", "sql"}},
		},
		[]record.Raw{
			{"id": "2", "name": "Bob", "title": "CIO", "specialties": []any{"sql"}},
			{"id": "3", "name": "Zed"},
		},
	)

	result, err := f.orch.SyncSuggested(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]resolution.Resolution{
		"alice": resolution.CreateInBackend,
		"2":     resolution.UseFrontend,
		"3":     resolution.UseBackend,
	}, result.Resolutions)
	assert.Equal(t, 3, result.Before.TotalDifferences)
	assert.Equal(t, 1, result.After.TotalDifferences)

	_, ok := result.After.Find("alice")
	assert.False(t, ok)
	_, ok = result.After.Find("2")
	assert.False(t, ok)
	zed, ok := result.After.Find("3")
	require.True(t, ok)
	assert.Equal(t, differ.MissingInFrontend, zed.Kind)

	assert.Equal(t, 2, result.Verification.Converged)
	assert.Equal(t, 1, result.Verification.Unchanged)
	assert.True(t, result.Success)
}

// ignoringStore accepts updates without applying them.
type ignoringStore struct {
	*backend.MemoryStore
}

func (s ignoringStore) UpdateRecord(ctx context.Context, collection, id string, fields map[string]any) (record.Raw, error) {
	return record.Raw{"id": id}, nil
}

func TestSync_VerificationDetectsNoProgress(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Collections = map[string]config.CollectionConfig{"team": {}}
	store := backend.NewMemoryStore()
	store.Seed("team", []record.Raw{{"id": "x", "name": "Alice", "title": "CIO"}})
	src := content.NewStaticSource(map[string][]record.Raw{"team": {{"id": "x", "name": "Alice", "title": "CTO"}}})

	orch, err := NewOrchestrator(cfg, "team", src, ignoringStore{store}, logger.NewNop())
	require.NoError(t, err)

	result, err := orch.Sync(context.Background(), map[string]resolution.Resolution{"x": resolution.UseFrontend})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification failed")
	require.NotNil(t, result)
	assert.True(t, result.Batch.Success)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Verification.Failed)
}

func TestSync_SkipVerification(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "Alice"}}, nil, func(c *config.Config) {
		c.Verification.SkipVerification = true
	})

	result, err := f.orch.Sync(context.Background(), map[string]resolution.Resolution{"alice": resolution.CreateInBackend})
	require.NoError(t, err)
	assert.Equal(t, "skip", string(result.Verification.Method))
	assert.True(t, result.Success)
}

func TestApplyBatch_SkipsUnresolvedAndReportsUnknownKeys(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "Alice"}, {"name": "Bob"}}, nil)
	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)

	batch := f.orch.ApplyBatch(context.Background(), report, map[string]resolution.Resolution{
		"bob":   resolution.DeleteInFrontend,
		"zeta":  resolution.UseBackend,
		"ghost": resolution.UseBackend,
	})

	require.Len(t, batch.Results, 3)
	assert.Equal(t, "bob", batch.Results[0].Key)
	assert.True(t, batch.Results[0].Success)
	assert.Equal(t, resolution.OpNone, batch.Results[0].Op)
	assert.Equal(t, "ghost", batch.Results[1].Key)
	assert.Equal(t, "zeta", batch.Results[2].Key)
	assert.Contains(t, batch.Results[1].Error, "no difference for key")
	assert.False(t, batch.Success)
	assert.Equal(t, 0, f.store.MutationCount())
}

func TestApplyBatch_Empty(t *testing.T) {
	f := newFixture(t, []record.Raw{}, nil)
	batch := f.orch.ApplyBatch(context.Background(), nil, nil)
	assert.True(t, batch.Success)
	assert.Empty(t, batch.Results)
	assert.Equal(t, "0 of 0 resolutions applied", batch.Message)
}

func TestApplyBatch_DuplicateKeysAppliedOnce(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "Alice"}, {"name": " alice "}}, nil)
	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.ByType[differ.MissingInBackend])

	batch := f.orch.ApplyBatch(context.Background(), report, map[string]resolution.Resolution{
		"alice": resolution.CreateInBackend,
	})
	assert.True(t, batch.Success)
	assert.Len(t, batch.Results, 1)
	assert.Equal(t, 1, f.store.MutationCount())
}

func TestApplyBatch_ItemDelayBetweenMutations(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "A"}, {"name": "B"}, {"name": "C"}}, nil,
		func(c *config.Config) { c.Processing.ItemDelaySeconds = 0.25 })

	var slept []time.Duration
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)
	batch := f.orch.ApplyBatch(context.Background(), report, f.orch.Policy().SuggestAll(report))

	assert.True(t, batch.Success)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept)
}

func TestApplyBatch_CancellationFailsRemainingItems(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "A"}, {"name": "B"}, {"name": "C"}}, nil,
		func(c *config.Config) { c.Processing.ItemDelaySeconds = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	report, err := f.orch.Analyze(ctx)
	require.NoError(t, err)
	batch := f.orch.ApplyBatch(ctx, report, f.orch.Policy().SuggestAll(report))

	require.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[0].Success)
	for _, item := range batch.Results[1:] {
		assert.False(t, item.Success)
		assert.ErrorIs(t, item.Err, context.Canceled)
		assert.ErrorIs(t, item.Err, ErrItemMutation)
	}
	assert.Equal(t, 1, f.store.MutationCount())
}

func TestApplyBatch_OnItemCallback(t *testing.T) {
	f := newFixture(t, []record.Raw{{"name": "A"}}, []record.Raw{{"id": "5", "name": "Z"}})
	var seen []string
	f.orch.OnItem(func(item ItemResult) { seen = append(seen, item.Key) })

	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)
	f.orch.ApplyBatch(context.Background(), report, f.orch.Policy().SuggestAll(report))

	assert.Equal(t, []string{"a", "5"}, seen)
}

func TestPlan_MutationsMatchResolutions(t *testing.T) {
	f := newFixture(t,
		[]record.Raw{{"id": "2", "name": "Bob", "title": "CEO", "email": "bob@example.com"}},
		[]record.Raw{{"id": "2", "name": "Bob", "title": "CIO"}},
		func(c *config.Config) {
			c.Collections["team"] = config.CollectionConfig{IgnoreFields: []string{"email"}}
		},
	)
	report, err := f.orch.Analyze(context.Background())
	require.NoError(t, err)

	items := f.orch.Plan(report, map[string]resolution.Resolution{"2": resolution.UseFrontend})
	require.Len(t, items, 1)
	require.NoError(t, items[0].Err)
	assert.Equal(t, resolution.OpUpdate, items[0].Mutation.Op)
	assert.Equal(t, "2", items[0].Mutation.ID)
	assert.Equal(t, "CEO", items[0].Mutation.Fields["title"])
	assert.NotContains(t, items[0].Mutation.Fields, "email")
}
