package resolution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/record"
)

func frontendRec(id, name, title string) *record.Record {
	r := record.Normalize(record.Raw{"id": id, "name": name, "title": title}, record.SourceFrontend)
	return &r
}

func backendRec(id, name, title string) *record.Record {
	r := record.Normalize(record.Raw{"id": id, "name": name, "title": title}, record.SourceBackend)
	return &r
}

func TestLegal_StateTable(t *testing.T) {
	all := []Resolution{CreateInBackend, DeleteInFrontend, UseFrontend, UseBackend}
	expected := map[differ.Kind]map[Resolution]bool{
		differ.MissingInBackend:  {CreateInBackend: true, DeleteInFrontend: true},
		differ.MissingInFrontend: {UseBackend: true},
		differ.Mismatch:          {UseFrontend: true, UseBackend: true},
	}

	for kind, allowed := range expected {
		for _, res := range all {
			t.Run(string(kind)+"/"+string(res), func(t *testing.T) {
				assert.Equal(t, allowed[res], Legal(kind, res))
			})
		}
	}

	assert.False(t, Legal(differ.Kind("UNKNOWN"), UseBackend))
}

func TestLegalFor_ReturnsCopy(t *testing.T) {
	got := LegalFor(differ.Mismatch)
	got[0] = DeleteInFrontend
	assert.Equal(t, []Resolution{UseFrontend, UseBackend}, LegalFor(differ.Mismatch))
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    Resolution
		wantErr bool
	}{
		{"CREATE_IN_BACKEND", CreateInBackend, false},
		{"use-frontend", UseFrontend, false},
		{" use_backend ", UseBackend, false},
		{"delete-in-frontend", DeleteInFrontend, false},
		{"merge", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResolution(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResolution)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMutating(t *testing.T) {
	assert.True(t, CreateInBackend.Mutating())
	assert.True(t, UseFrontend.Mutating())
	assert.False(t, UseBackend.Mutating())
	assert.False(t, DeleteInFrontend.Mutating())
}

func TestDefaultPolicy_Suggest(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		kind differ.Kind
		want Resolution
	}{
		{differ.MissingInBackend, CreateInBackend},
		{differ.MissingInFrontend, UseBackend},
		{differ.Mismatch, UseFrontend},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, ok := p.Suggest(differ.Difference{Kind: tt.kind})
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := p.Suggest(differ.Difference{Kind: "SOMETHING_ELSE"})
	assert.False(t, ok)
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("", "", "use-backend")
	require.NoError(t, err)
	assert.Equal(t, UseBackend, p[differ.Mismatch])
	assert.Equal(t, CreateInBackend, p[differ.MissingInBackend])

	p, err = NewPolicy("delete_in_frontend", "", "")
	require.NoError(t, err)
	assert.Equal(t, DeleteInFrontend, p[differ.MissingInBackend])

	_, err = NewPolicy("", "create_in_backend", "")
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = NewPolicy("bogus", "", "")
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestSuggestAll(t *testing.T) {
	report := differ.Diff(
		[]record.Raw{{"id": "1", "name": "A"}, {"id": "2", "name": "B", "title": "x"}},
		[]record.Raw{{"id": "2", "name": "B", "title": "y"}, {"id": "3", "name": "C"}},
		differ.Options{},
	)

	got := DefaultPolicy().SuggestAll(report)

	assert.Equal(t, map[string]Resolution{
		"1": CreateInBackend,
		"3": UseBackend,
		"2": UseFrontend,
	}, got)
	assert.Empty(t, DefaultPolicy().SuggestAll(nil))
}

func TestPlan(t *testing.T) {
	missingBackend := differ.Difference{Kind: differ.MissingInBackend, Key: "x", Frontend: frontendRec("x", "Alice", "CTO")}
	missingFrontend := differ.Difference{Kind: differ.MissingInFrontend, Key: "b", Backend: backendRec("b", "Bob", "")}
	mismatch := differ.Difference{
		Kind:     differ.Mismatch,
		Key:      "m",
		Frontend: frontendRec("", "Mia", "CTO"),
		Backend:  backendRec("77", "Mia", "CIO"),
	}

	t.Run("create from frontend", func(t *testing.T) {
		m, err := Plan(missingBackend, CreateInBackend, nil)
		require.NoError(t, err)
		assert.Equal(t, OpCreate, m.Op)
		assert.Equal(t, "Alice", m.Fields["name"])
		assert.Equal(t, "CTO", m.Fields["title"])
	})

	t.Run("delete in frontend is a no-op", func(t *testing.T) {
		m, err := Plan(missingBackend, DeleteInFrontend, nil)
		require.NoError(t, err)
		assert.Equal(t, OpNone, m.Op)
	})

	t.Run("use backend is a no-op", func(t *testing.T) {
		m, err := Plan(missingFrontend, UseBackend, nil)
		require.NoError(t, err)
		assert.Equal(t, OpNone, m.Op)

		m, err = Plan(mismatch, UseBackend, nil)
		require.NoError(t, err)
		assert.Equal(t, OpNone, m.Op)
	})

	t.Run("use frontend updates backend id", func(t *testing.T) {
		m, err := Plan(mismatch, UseFrontend, []string{record.FieldImage})
		require.NoError(t, err)
		assert.Equal(t, OpUpdate, m.Op)
		assert.Equal(t, "77", m.ID)
		assert.Equal(t, "CTO", m.Fields["title"])
		assert.NotContains(t, m.Fields, "image")
	})

	t.Run("create on missing in frontend is rejected", func(t *testing.T) {
		_, err := Plan(missingFrontend, CreateInBackend, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidResolution))
		assert.Contains(t, err.Error(), "MISSING_IN_FRONTEND")
		assert.Contains(t, err.Error(), "allowed: USE_BACKEND")
	})

	t.Run("use frontend without backend id is rejected", func(t *testing.T) {
		d := mismatch
		d.Backend = backendRec("", "Mia", "CIO")
		_, err := Plan(d, UseFrontend, nil)
		assert.ErrorIs(t, err, ErrInvalidResolution)
	})

	t.Run("create without frontend record is rejected", func(t *testing.T) {
		_, err := Plan(differ.Difference{Kind: differ.MissingInBackend, Key: "z"}, CreateInBackend, nil)
		assert.ErrorIs(t, err, ErrInvalidResolution)
	})
}
