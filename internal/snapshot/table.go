// Package snapshot holds the in-memory fact table served to interactive
// requests and reloads it from the materialized store.
package snapshot

import (
	"time"

	"github.com/sells-group/user-dashboard/internal/model"
)

// FactTable is an immutable snapshot of the materialized fact table.
// Callers must not mutate Rows.
type FactTable struct {
	Rows       []model.FactRow
	Generation string
	LoadedAt   time.Time

	users  []string
	byUser map[string][]int
}

// NewFactTable indexes rows by user. Rows are expected in store order
// (numeric user id, then week); user order follows first appearance.
func NewFactTable(rows []model.FactRow, generation string, loadedAt time.Time) *FactTable {
	t := &FactTable{
		Rows:       rows,
		Generation: generation,
		LoadedAt:   loadedAt,
		byUser:     make(map[string][]int),
	}
	for i := range rows {
		id := rows[i].UserID
		if _, ok := t.byUser[id]; !ok {
			t.users = append(t.users, id)
		}
		t.byUser[id] = append(t.byUser[id], i)
	}
	return t
}

// Empty returns a table with no rows. It still carries the full column
// set through model.FactRow, so renderers can draw headers.
func Empty() *FactTable {
	return NewFactTable(nil, "", time.Time{})
}

// Len returns the number of fact rows.
func (t *FactTable) Len() int { return len(t.Rows) }

// IsEmpty reports whether the table has no rows.
func (t *FactTable) IsEmpty() bool { return len(t.Rows) == 0 }

// UserIDs returns every user id in table order. The slice is shared.
func (t *FactTable) UserIDs() []string { return t.users }

// HasUser reports whether id is a known user.
func (t *FactTable) HasUser(id string) bool {
	_, ok := t.byUser[id]
	return ok
}

// UserRows returns the indexes into Rows that belong to id.
func (t *FactTable) UserRows(id string) []int { return t.byUser[id] }
