package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/query"
	"github.com/phrazzld/resource-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedNow   = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
)

func newTodos(t *testing.T) (*Repository, *store.MemoryAdapter) {
	t.Helper()
	adapter := store.NewMemoryAdapter(nil)
	return New(adapter, domain.TodoKind(), testLogger, WithClock(func() time.Time { return fixedNow })), adapter
}

func newPeople(t *testing.T) *Repository {
	t.Helper()
	kind := domain.PeopleKind()
	adapter := store.NewMemoryAdapter(map[string][]domain.Record{kind.Name: kind.Seed})
	return New(adapter, kind, testLogger)
}

func TestCreateAssignsReservedFields(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{
		"title":   "buy milk",
		"id":      "client-chosen",
		"version": json.Number("99"),
		"ownerId": "someone-else",
	}, "u1")
	require.NoError(t, err)

	assert.NotEqual(t, "client-chosen", rec.ID())
	assert.NotEmpty(t, rec.ID())
	assert.Equal(t, "u1", rec.OwnerID())
	assert.Equal(t, int64(1), rec.Version())
	assert.Equal(t, false, rec["completed"])
	assert.Equal(t, "medium", rec["priority"])
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), rec[domain.FieldCreatedAt])
	assert.Equal(t, rec[domain.FieldCreatedAt], rec[domain.FieldUpdatedAt])

	stored, err := repo.GetByID(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

func TestCreateNumericIDsAreUniqueAndStable(t *testing.T) {
	t.Parallel()
	repo := newPeople(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, map[string]any{"name": "Edsger", "email": "ed@example.com"}, "")
	require.NoError(t, err)
	assert.Equal(t, "4", first.ID())
	assert.Empty(t, first.OwnerID())

	_, err = repo.Remove(ctx, "2", Mutation{})
	require.NoError(t, err)

	second, err := repo.Create(ctx, map[string]any{"name": "Barbara", "email": "barbara@example.com"}, "")
	require.NoError(t, err)
	assert.Equal(t, "5", second.ID())

	again, err := repo.GetByID(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, "Edsger", again["name"])

	records, err := repo.Records(ctx, Scope{})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, r := range records {
		assert.False(t, seen[r.ID()], "duplicate id %s", r.ID())
		seen[r.ID()] = true
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     map[string]any
		wantField string
		wantCause error
	}{
		{name: "missing required", input: map[string]any{"description": "x"}, wantField: "title"},
		{name: "empty title", input: map[string]any{"title": ""}, wantField: "title", wantCause: domain.ErrInvalidFormat},
		{name: "wrong type", input: map[string]any{"title": "a", "completed": "yes"}, wantField: "completed", wantCause: domain.ErrInvalidFormat},
		{name: "rule violation", input: map[string]any{"title": "a", "priority": "urgent"}, wantField: "priority", wantCause: domain.ErrInvalidFormat},
		{name: "bad timestamp", input: map[string]any{"title": "a", "dueDate": "tomorrow"}, wantField: "dueDate", wantCause: domain.ErrInvalidFormat},
		{name: "unknown field", input: map[string]any{"title": "a", "color": "red"}, wantField: "color", wantCause: domain.ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo, _ := newTodos(t)

			_, err := repo.Create(context.Background(), tt.input, "u1")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, tt.wantField, domain.ValidationField(err))
			if tt.wantCause != nil {
				assert.ErrorIs(t, err, tt.wantCause)
			}
		})
	}
}

func TestNumberRulesSeeNumericValue(t *testing.T) {
	t.Parallel()
	repo := newPeople(t)

	_, err := repo.Create(context.Background(), map[string]any{
		"name": "Old", "email": "old@example.com", "age": json.Number("151"),
	}, "")
	assert.Equal(t, "age", domain.ValidationField(err))

	rec, err := repo.Create(context.Background(), map[string]any{
		"name": "Young", "email": "young@example.com", "age": json.Number("9"),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, json.Number("9"), rec["age"])
}

func TestPatchMergesAndPutReplaces(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{
		"title":       "buy milk",
		"description": "two litres",
		"priority":    "high",
	}, "u1")
	require.NoError(t, err)

	patched, err := repo.Patch(ctx, rec.ID(), map[string]any{"completed": true}, Mutation{})
	require.NoError(t, err)
	assert.Equal(t, true, patched["completed"])
	assert.Equal(t, "two litres", patched["description"])
	assert.Equal(t, "high", patched["priority"])
	assert.Equal(t, int64(2), patched.Version())
	assert.Equal(t, rec.ID(), patched.ID())
	assert.Equal(t, "u1", patched.OwnerID())

	replaced, err := repo.Update(ctx, rec.ID(), map[string]any{"title": "buy oat milk"}, Mutation{})
	require.NoError(t, err)
	assert.Equal(t, "buy oat milk", replaced["title"])
	assert.NotContains(t, replaced, "description")
	assert.Equal(t, false, replaced["completed"])
	assert.Equal(t, "medium", replaced["priority"])
	assert.Equal(t, int64(3), replaced.Version())
	assert.Equal(t, "u1", replaced.OwnerID())
	assert.Equal(t, rec[domain.FieldCreatedAt], replaced[domain.FieldCreatedAt])
}

func TestPatchNullClearsOptionalField(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{"title": "a", "description": "b"}, "u1")
	require.NoError(t, err)

	patched, err := repo.Patch(ctx, rec.ID(), map[string]any{"description": nil}, Mutation{})
	require.NoError(t, err)
	assert.NotContains(t, patched, "description")

	_, err = repo.Patch(ctx, rec.ID(), map[string]any{"title": nil}, Mutation{})
	assert.Equal(t, "title", domain.ValidationField(err))
}

func TestRemoveThenGetIsNotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{"title": "gone soon"}, "u1")
	require.NoError(t, err)

	removed, err := repo.Remove(ctx, rec.ID(), Mutation{})
	require.NoError(t, err)
	assert.Equal(t, rec, removed)

	_, err = repo.GetByID(ctx, rec.ID())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.Remove(ctx, rec.ID(), Mutation{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.Patch(ctx, rec.ID(), map[string]any{"title": "x"}, Mutation{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMutationPreconditions(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{"title": "guarded"}, "u1")
	require.NoError(t, err)

	denied := errors.New("denied")
	var seen domain.Record
	_, err = repo.Patch(ctx, rec.ID(), map[string]any{"title": "x"}, Mutation{
		Authorize: func(current domain.Record) error {
			seen = current
			return denied
		},
	})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, "u1", seen.OwnerID())

	_, err = repo.Remove(ctx, rec.ID(), Mutation{ExpectedVersion: 7})
	assert.ErrorIs(t, err, store.ErrConflict)

	current, err := repo.GetByID(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "guarded", current["title"])
	assert.Equal(t, int64(1), current.Version())

	_, err = repo.Patch(ctx, rec.ID(), map[string]any{"title": "ok"}, Mutation{ExpectedVersion: 1})
	assert.NoError(t, err)
}

func TestConcurrentUpdatesExactlyOneWins(t *testing.T) {
	t.Parallel()
	repo, adapter := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{"title": "race"}, "u1")
	require.NoError(t, err)

	// Both writers load the same version before either saves.
	gate := make(chan struct{})
	var loaded sync.WaitGroup
	loaded.Add(2)
	blocking := &blockingAdapter{Adapter: adapter, loaded: &loaded, release: gate}
	racer := New(blocking, domain.TodoKind(), testLogger)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, title := range []string{"first", "second"} {
		wg.Add(1)
		go func(i int, title string) {
			defer wg.Done()
			_, errs[i] = racer.Patch(ctx, rec.ID(), map[string]any{"title": title}, Mutation{})
		}(i, title)
	}
	loaded.Wait()
	close(gate)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	final, err := repo.GetByID(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version())
}

func TestListScopesAndPaginates(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, map[string]any{"title": "mine"}, "u1")
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, map[string]any{"title": "theirs"}, "u2")
	require.NoError(t, err)

	page, err := repo.List(ctx, Scope{OwnerID: "u1"}, query.Criteria{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Collect(), 2)
	assert.NotNil(t, page.Pagination.Next)

	all, err := repo.Records(ctx, Scope{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestGetScopedHidesForeignRecords(t *testing.T) {
	t.Parallel()
	repo, _ := newTodos(t)
	ctx := context.Background()

	rec, err := repo.Create(ctx, map[string]any{"title": "mine"}, "u1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		scope   Scope
		id      string
		wantErr bool
	}{
		{name: "owner", scope: Scope{OwnerID: "u1"}, id: rec.ID()},
		{name: "unscoped", scope: Scope{}, id: rec.ID()},
		{name: "other owner", scope: Scope{OwnerID: "u2"}, id: rec.ID(), wantErr: true},
		{name: "absent", scope: Scope{OwnerID: "u2"}, id: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetScoped(ctx, tt.scope, tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrRecordNotFound)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rec.ID(), got.ID())
		})
	}
}

// blockingAdapter holds every Save until all expected Loads happened.
type blockingAdapter struct {
	store.Adapter
	loaded  *sync.WaitGroup
	release chan struct{}
}

func (b *blockingAdapter) Load(ctx context.Context, kind string) (*store.Collection, error) {
	c, err := b.Adapter.Load(ctx, kind)
	b.loaded.Done()
	return c, err
}

func (b *blockingAdapter) Save(ctx context.Context, c *store.Collection) error {
	<-b.release
	return b.Adapter.Save(ctx, c)
}
