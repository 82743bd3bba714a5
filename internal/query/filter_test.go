package query

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func people(n int) []domain.Record {
	out := make([]domain.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Record{
			"id":   json.Number(fmt.Sprint(i)),
			"name": fmt.Sprintf("Person %02d", i),
			"age":  json.Number(fmt.Sprint(i)),
		})
	}
	return out
}

func ids(records []domain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID())
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestApplyPaginatesFilteredSet(t *testing.T) {
	t.Parallel()

	page := Apply(people(25), Criteria{Page: 2, Size: 10})

	assert.Equal(t, 25, page.Count)
	got := page.Collect()
	require.Len(t, got, 10)
	assert.Equal(t, "11", got[0].ID())
	assert.Equal(t, "20", got[9].ID())
	require.NotNil(t, page.Pagination.Next)
	assert.Equal(t, PageRef{Page: 3, Limit: 10}, *page.Pagination.Next)
	require.NotNil(t, page.Pagination.Prev)
	assert.Equal(t, PageRef{Page: 1, Limit: 10}, *page.Pagination.Prev)
}

func TestApplyFilterOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		criteria  Criteria
		wantCount int
		wantIDs   []string
		wantNext  bool
		wantPrev  bool
	}{
		{
			name:      "no filters defaults paging",
			criteria:  Criteria{},
			wantCount: 25,
			wantIDs:   []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"},
			wantNext:  true,
		},
		{
			name:      "text match is case insensitive",
			criteria:  Criteria{MatchField: "name", Match: "person 1", Size: 5},
			wantCount: 10,
			wantIDs:   []string{"10", "11", "12", "13", "14"},
			wantNext:  true,
		},
		{
			name:      "range narrows after match",
			criteria:  Criteria{MatchField: "name", Match: "person 1", RangeField: "age", Min: ptr(12), Max: ptr(14)},
			wantCount: 3,
			wantIDs:   []string{"12", "13", "14"},
		},
		{
			name:      "open upper bound",
			criteria:  Criteria{RangeField: "age", Min: ptr(24)},
			wantCount: 2,
			wantIDs:   []string{"24", "25"},
		},
		{
			name:      "page past the end is empty",
			criteria:  Criteria{Page: 4, Size: 10},
			wantCount: 25,
			wantIDs:   []string{},
			wantPrev:  true,
		},
		{
			name:      "last partial page",
			criteria:  Criteria{Page: 3, Size: 10},
			wantCount: 25,
			wantIDs:   []string{"21", "22", "23", "24", "25"},
			wantPrev:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := Apply(people(25), tt.criteria)
			assert.Equal(t, tt.wantCount, page.Count)
			assert.Equal(t, tt.wantIDs, ids(page.Collect()))
			assert.Equal(t, tt.wantNext, page.Pagination.Next != nil)
			assert.Equal(t, tt.wantPrev, page.Pagination.Prev != nil)
		})
	}
}

func TestRangeSkipsNonNumericValues(t *testing.T) {
	t.Parallel()

	records := []domain.Record{
		{"id": "a", "age": "old"},
		{"id": "b"},
		{"id": "c", "age": json.Number("40")},
	}
	page := Apply(records, Criteria{RangeField: "age", Min: ptr(0)})
	assert.Equal(t, []string{"c"}, ids(page.Collect()))
}

func TestItemsCanBeRangedTwice(t *testing.T) {
	t.Parallel()

	page := Apply(people(3), Criteria{})
	assert.Equal(t, ids(page.Collect()), ids(page.Collect()))
}

func TestWindowStopsEarly(t *testing.T) {
	t.Parallel()

	pulled := 0
	seq := func(yield func(int) bool) {
		for i := 0; i < 1000; i++ {
			pulled++
			if !yield(i) {
				return
			}
		}
	}

	var got []int
	for v := range Window(seq, 2, 4) {
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3}, got)
	assert.LessOrEqual(t, pulled, 5)
}
