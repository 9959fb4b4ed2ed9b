// Package selection tracks the filtered ids, the checked ids, and the
// current page of one dashboard session.
package selection

import (
	"github.com/rotisserie/eris"
)

// DefaultPageSize is used when no positive page size is given.
const DefaultPageSize = 10

// Trigger names the transition that produced the current state.
type Trigger string

const (
	TriggerFilterChanged    Trigger = "filter-changed"
	TriggerSelectAllToggled Trigger = "select-all-toggled"
	TriggerRowToggled       Trigger = "row-checkbox-toggled"
	TriggerPageNav          Trigger = "page-nav"
	TriggerPageSizeChanged  Trigger = "page-size-changed"
	TriggerSortChanged      Trigger = "sort-changed"
)

// State is the selection and pagination state machine. It is not safe for
// concurrent use.
type State struct {
	filtered    []string
	filteredSet map[string]bool
	selected    map[string]bool
	page        int
	pageSize    int
	last        Trigger
}

// New returns a state with everything in filtered selected, on page 1.
func New(filtered []string, pageSize int) *State {
	s := &State{pageSize: normalizePageSize(pageSize)}
	s.FilterChanged(filtered)
	return s
}

func normalizePageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return n
}

// TotalPages returns ceil(n/size), and 1 for an empty result.
func TotalPages(n, size int) int {
	size = normalizePageSize(size)
	if n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

func clamp(page, total int) int {
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}

// FilterChanged replaces the filtered ids, reselects all of them, and
// returns to page 1. A manual deselection does not survive a filter change.
func (s *State) FilterChanged(ids []string) {
	s.setFiltered(ids)
	s.selected = make(map[string]bool, len(ids))
	for _, id := range s.filtered {
		s.selected[id] = true
	}
	s.page = 1
	s.last = TriggerFilterChanged
}

// SortChanged installs the reordered ids and returns to page 1. The
// checked ids are kept.
func (s *State) SortChanged(ids []string) {
	s.setFiltered(ids)
	for id := range s.selected {
		if !s.filteredSet[id] {
			delete(s.selected, id)
		}
	}
	s.page = 1
	s.last = TriggerSortChanged
}

func (s *State) setFiltered(ids []string) {
	s.filtered = make([]string, 0, len(ids))
	s.filteredSet = make(map[string]bool, len(ids))
	for _, id := range ids {
		if s.filteredSet[id] {
			continue
		}
		s.filteredSet[id] = true
		s.filtered = append(s.filtered, id)
	}
}

// SelectAll checks every filtered id, or clears the selection.
func (s *State) SelectAll(checked bool) {
	s.selected = make(map[string]bool, len(s.filtered))
	if checked {
		for _, id := range s.filtered {
			s.selected[id] = true
		}
	}
	s.last = TriggerSelectAllToggled
}

// ToggleRow checks or unchecks id. Ids that are not on the current page
// are ignored; the return value reports whether the state changed.
func (s *State) ToggleRow(id string, checked bool) bool {
	onPage := false
	for _, p := range s.PageIDs() {
		if p == id {
			onPage = true
			break
		}
	}
	if !onPage {
		return false
	}
	if checked {
		s.selected[id] = true
	} else {
		delete(s.selected, id)
	}
	s.last = TriggerRowToggled
	return true
}

// Navigate moves one page forward (delta > 0) or back (delta < 0),
// staying within the page range.
func (s *State) Navigate(delta int) {
	switch {
	case delta > 0:
		s.page++
	case delta < 0:
		s.page--
	}
	s.page = clamp(s.page, s.TotalPages())
	s.last = TriggerPageNav
}

// GoTo jumps to page, clamped into the page range.
func (s *State) GoTo(page int) {
	s.page = clamp(page, s.TotalPages())
	s.last = TriggerPageNav
}

// SetPageSize changes the page size and returns to page 1.
func (s *State) SetPageSize(n int) {
	s.pageSize = normalizePageSize(n)
	s.page = 1
	s.last = TriggerPageSizeChanged
}

// AllChecked is the select-all indicator: every filtered id is checked.
func (s *State) AllChecked() bool {
	return len(s.filtered) > 0 && len(s.selected) == len(s.filtered)
}

// IsSelected reports whether id is checked.
func (s *State) IsSelected(id string) bool { return s.selected[id] }

// Selected returns the checked ids in filtered order.
func (s *State) Selected() []string {
	out := make([]string, 0, len(s.selected))
	for _, id := range s.filtered {
		if s.selected[id] {
			out = append(out, id)
		}
	}
	return out
}

// Filtered returns the filtered ids in order. The slice is shared.
func (s *State) Filtered() []string { return s.filtered }

// ExportIDs returns the ids that are both checked and filtered, in
// filtered order.
func (s *State) ExportIDs() []string { return s.Selected() }

// Page returns the current page number.
func (s *State) Page() int { return s.page }

// PageSize returns the page size.
func (s *State) PageSize() int { return s.pageSize }

// TotalPages returns the page count of the filtered ids.
func (s *State) TotalPages() int { return TotalPages(len(s.filtered), s.pageSize) }

// LastTrigger returns the transition that produced the current state.
func (s *State) LastTrigger() Trigger { return s.last }

// PageIDs returns the filtered ids on the current page.
func (s *State) PageIDs() []string {
	start := (s.page - 1) * s.pageSize
	if start >= len(s.filtered) {
		return nil
	}
	end := min(start+s.pageSize, len(s.filtered))
	return s.filtered[start:end]
}

// Event is a selection change sent by a client.
type Event struct {
	Kind    Trigger `json:"kind"`
	ID      string  `json:"id,omitempty"`
	Checked bool    `json:"checked"`
}

// Apply dispatches a checkbox event.
func (s *State) Apply(ev Event) error {
	switch ev.Kind {
	case TriggerSelectAllToggled:
		s.SelectAll(ev.Checked)
	case TriggerRowToggled:
		s.ToggleRow(ev.ID, ev.Checked)
	default:
		return eris.Errorf("selection: unsupported event %q", ev.Kind)
	}
	return nil
}
