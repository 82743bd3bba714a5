package store

import (
	"context"

	"github.com/phrazzld/resource-api/internal/domain"
)

// Adapter persists and retrieves whole collections of records.
//
// Implementations must treat Save as the single serialization point: every
// change in the collection is applied only if the stored version of each
// touched record still equals the version it had when loaded. A mismatch
// fails the save with ErrConflict and applies nothing that the adapter can
// roll back. Any read or write fault is reported as ErrStorage.
type Adapter interface {
	// Load returns a fresh snapshot of every record of kind in insertion order.
	// A missing collection is not an error.
	Load(ctx context.Context, kind string) (*Collection, error)

	// Save applies the changes made to c since it was loaded.
	Save(ctx context.Context, c *Collection) error

	// Close releases any connections held by the adapter.
	Close() error
}

// Collection is an insertion-ordered snapshot of the records of one kind,
// remembering the version each record had when it was loaded.
type Collection struct {
	Kind    string
	Records []domain.Record

	baseOrder []string
	base      map[string]int64
}

// NewCollection wraps records loaded from storage. The records' current
// versions become the base that Save compares against.
func NewCollection(kind string, records []domain.Record) *Collection {
	c := &Collection{
		Kind:    kind,
		Records: records,
		base:    make(map[string]int64, len(records)),
	}
	for _, r := range records {
		id := r.ID()
		c.baseOrder = append(c.baseOrder, id)
		c.base[id] = r.Version()
	}
	return c
}

// Find returns the index and record with the given id, or -1 and nil.
func (c *Collection) Find(id string) (int, domain.Record) {
	for i, r := range c.Records {
		if r.ID() == id {
			return i, r
		}
	}
	return -1, nil
}

// Append adds a new record at the end of the collection.
func (c *Collection) Append(r domain.Record) {
	c.Records = append(c.Records, r)
}

// Replace swaps the record at index i.
func (c *Collection) Replace(i int, r domain.Record) {
	c.Records[i] = r
}

// RemoveAt deletes the record at index i and returns it.
func (c *Collection) RemoveAt(i int) domain.Record {
	removed := c.Records[i]
	c.Records = append(c.Records[:i:i], c.Records[i+1:]...)
	return removed
}

// Upsert is one record written by a save. Insert marks a record that was not
// in the loaded collection; otherwise Expected is the version it had when
// loaded, which is 0 for records stored without a version.
type Upsert struct {
	Record   domain.Record
	Insert   bool
	Expected int64
}

// Delete is one record removed by a save.
type Delete struct {
	ID       string
	Expected int64
}

// Changeset is the difference between a collection and its loaded base.
type Changeset struct {
	Upserts []Upsert
	Deletes []Delete
}

// Empty reports whether there is nothing to save.
func (cs Changeset) Empty() bool {
	return len(cs.Upserts) == 0 && len(cs.Deletes) == 0
}

// Changes computes what must be written to bring storage from the loaded
// base to the current records. Records whose version did not move are
// considered untouched.
func (c *Collection) Changes() Changeset {
	var cs Changeset
	present := make(map[string]struct{}, len(c.Records))

	for _, r := range c.Records {
		id := r.ID()
		present[id] = struct{}{}

		baseVersion, existed := c.base[id]
		switch {
		case !existed:
			cs.Upserts = append(cs.Upserts, Upsert{Record: r, Insert: true})
		case r.Version() != baseVersion:
			cs.Upserts = append(cs.Upserts, Upsert{Record: r, Expected: baseVersion})
		}
	}

	for _, id := range c.baseOrder {
		if _, ok := present[id]; !ok {
			cs.Deletes = append(cs.Deletes, Delete{ID: id, Expected: c.base[id]})
		}
	}

	return cs
}

// Apply verifies cs against the records in c and applies it in place.
// It is used by adapters that hold the whole collection in one place (file,
// memory): c is the state currently in storage, not the caller's snapshot.
// On conflict c is left unchanged.
func (c *Collection) Apply(cs Changeset) error {
	index := make(map[string]int, len(c.Records))
	for i, r := range c.Records {
		index[r.ID()] = i
	}

	for _, u := range cs.Upserts {
		id := u.Record.ID()
		i, exists := index[id]
		if u.Insert {
			if exists {
				return ConflictFailure(c.Kind, "save", id, 0, c.Records[i].Version())
			}
			continue
		}
		if !exists {
			return ConflictFailure(c.Kind, "save", id, u.Expected, 0)
		}
		if found := c.Records[i].Version(); found != u.Expected {
			return ConflictFailure(c.Kind, "save", id, u.Expected, found)
		}
	}
	for _, d := range cs.Deletes {
		i, exists := index[d.ID]
		if !exists {
			return ConflictFailure(c.Kind, "save", d.ID, d.Expected, 0)
		}
		if found := c.Records[i].Version(); found != d.Expected {
			return ConflictFailure(c.Kind, "save", d.ID, d.Expected, found)
		}
	}

	for _, u := range cs.Upserts {
		if i, exists := index[u.Record.ID()]; exists {
			c.Records[i] = u.Record.Clone()
			continue
		}
		c.Records = append(c.Records, u.Record.Clone())
		index[u.Record.ID()] = len(c.Records) - 1
	}

	if len(cs.Deletes) > 0 {
		gone := make(map[string]struct{}, len(cs.Deletes))
		for _, d := range cs.Deletes {
			gone[d.ID] = struct{}{}
		}
		kept := c.Records[:0]
		for _, r := range c.Records {
			if _, drop := gone[r.ID()]; !drop {
				kept = append(kept, r)
			}
		}
		c.Records = kept
	}

	return nil
}
