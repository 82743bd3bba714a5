package sqldoc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testSeeds = map[string][]domain.Record{
	"people": {
		{"id": json.Number("1"), "version": json.Number("1"), "name": "Ada"},
		{"id": json.Number("2"), "version": json.Number("1"), "name": "Alan"},
	},
}

// openStores returns one store per dialect available in this environment.
// SQLite always runs in memory; PostgreSQL needs RESOURCE_TEST_DATABASE_URL.
func openStores(t *testing.T) map[string]*Store {
	t.Helper()
	ctx := context.Background()
	stores := map[string]*Store{}

	db, err := Open(ctx, SQLite, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, SQLite, "up", testLogger))
	stores["sqlite"] = New(db, SQLite, testSeeds, testLogger)

	if dsn := os.Getenv("RESOURCE_TEST_DATABASE_URL"); dsn != "" {
		pg, err := Open(ctx, Postgres, dsn)
		require.NoError(t, err)
		require.NoError(t, Migrate(ctx, pg, Postgres, "reset", testLogger))
		require.NoError(t, Migrate(ctx, pg, Postgres, "up", testLogger))
		stores["postgres"] = New(pg, Postgres, testSeeds, testLogger)
	}

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestLoadSeedsOnFirstUse(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c, err := s.Load(ctx, "people")
			require.NoError(t, err)
			require.Len(t, c.Records, 2)
			assert.Equal(t, "1", c.Records[0].ID())
			assert.Equal(t, "Alan", c.Records[1]["name"])

			empty, err := s.Load(ctx, "todos")
			require.NoError(t, err)
			assert.Empty(t, empty.Records)

			// seeding happens once
			idx, _ := c.Find("1")
			c.RemoveAt(idx)
			require.NoError(t, s.Save(ctx, c))

			again, err := s.Load(ctx, "people")
			require.NoError(t, err)
			assert.Len(t, again.Records, 1)
		})
	}
}

func TestSaveKeepsInsertionOrder(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c, err := s.Load(ctx, "notes")
			require.NoError(t, err)
			for _, id := range []string{"c", "a", "b"} {
				c.Append(domain.Record{"id": id, "version": json.Number("1"), "tags": []any{"x", "y"}})
			}
			require.NoError(t, s.Save(ctx, c))

			loaded, err := s.Load(ctx, "notes")
			require.NoError(t, err)
			require.Len(t, loaded.Records, 3)
			assert.Equal(t, "c", loaded.Records[0].ID())
			assert.Equal(t, "a", loaded.Records[1].ID())
			assert.Equal(t, "b", loaded.Records[2].ID())
			assert.Equal(t, []any{"x", "y"}, loaded.Records[0]["tags"])
			assert.Equal(t, int64(1), loaded.Records[0].Version())
		})
	}
}

func TestSaveDetectsConflicts(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.Load(ctx, "people")
			require.NoError(t, err)
			second, err := s.Load(ctx, "people")
			require.NoError(t, err)

			i, r := first.Find("2")
			updated := r.Clone()
			updated["name"] = "Alan M. Turing"
			updated["version"] = json.Number("2")
			first.Replace(i, updated)
			require.NoError(t, s.Save(ctx, first))

			j, stale := second.Find("2")
			staleUpdate := stale.Clone()
			staleUpdate["name"] = "lost update"
			staleUpdate["version"] = json.Number("2")
			second.Replace(j, staleUpdate)

			err = s.Save(ctx, second)
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrConflict)

			current, err := s.Load(ctx, "people")
			require.NoError(t, err)
			_, got := current.Find("2")
			assert.Equal(t, "Alan M. Turing", got["name"])
		})
	}
}

func TestConflictRollsBackWholeSave(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c, err := s.Load(ctx, "people")
			require.NoError(t, err)
			other, err := s.Load(ctx, "people")
			require.NoError(t, err)

			// other removes record 1 first
			idx, _ := other.Find("1")
			other.RemoveAt(idx)
			require.NoError(t, s.Save(ctx, other))

			// c inserts a record and updates the removed one
			c.Append(domain.Record{"id": json.Number("3"), "version": json.Number("1"), "name": "Grace"})
			i, r := c.Find("1")
			r = r.Clone()
			r["version"] = json.Number("2")
			c.Replace(i, r)

			err = s.Save(ctx, c)
			assert.ErrorIs(t, err, store.ErrConflict)

			current, err := s.Load(ctx, "people")
			require.NoError(t, err)
			_, inserted := current.Find("3")
			assert.Nil(t, inserted, "insert from the failed save must be rolled back")
		})
	}
}

func TestConcurrentUpdatesOneWins(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 5

			snapshots := make([]*store.Collection, writers)
			for i := range snapshots {
				c, err := s.Load(ctx, "people")
				require.NoError(t, err)
				snapshots[i] = c
			}

			var wg sync.WaitGroup
			errs := make([]error, writers)
			for i, c := range snapshots {
				wg.Add(1)
				go func(i int, c *store.Collection) {
					defer wg.Done()
					idx, r := c.Find("1")
					r = r.Clone()
					r["version"] = json.Number("2")
					c.Replace(idx, r)
					errs[i] = s.Save(ctx, c)
				}(i, c)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, store.ErrConflict)
			}
			assert.Equal(t, 1, succeeded)
		})
	}
}

func TestLoadCorruptBodyIsStorageFailure(t *testing.T) {
	ctx := context.Background()
	s := openStores(t)["sqlite"]

	_, err := s.Load(ctx, "broken")
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx,
		`INSERT INTO documents (kind, id, seq, version, body) VALUES ('broken', 'x', 1, 1, '{not json')`)
	require.NoError(t, err)

	_, err = s.Load(ctx, "broken")
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: "postgres", want: "postgres"},
		{driver: "pgx", want: "postgres"},
		{driver: "sqlite", want: "sqlite3"},
		{driver: "mysql", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name)
		})
	}
}

func TestRebind(t *testing.T) {
	q := `UPDATE documents SET version = ? WHERE kind = ? AND id = ?`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `UPDATE documents SET version = $1 WHERE kind = $2 AND id = $3`, Postgres.rebind(q))
}
