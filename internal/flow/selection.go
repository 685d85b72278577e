package flow

import (
	"sort"
	"sync"

	"chronoreel/internal/model"
)

// Selection tracks which generated assets are destined for the final video
// and which are mid-regeneration. Assets being regenerated are never part of
// the confirmed selection; their prior selection state is remembered so it
// can be restored when the replacement arrives.
type Selection struct {
	mu sync.Mutex

	assets             []model.Asset
	selected           map[int64]bool
	regenerating       map[int64]bool
	previouslySelected map[int64]bool
}

func NewSelection() *Selection {
	s := &Selection{}
	s.clearLocked()
	return s
}

func (s *Selection) clearLocked() {
	s.assets = nil
	s.selected = make(map[int64]bool)
	s.regenerating = make(map[int64]bool)
	s.previouslySelected = make(map[int64]bool)
}

// Reset replaces the tracked assets, ordered by sequence then id, optionally
// pre-selecting all of them.
func (s *Selection) Reset(assets []model.Asset, preselectAll bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.assets = append(s.assets, assets...)
	sort.SliceStable(s.assets, func(i, j int) bool {
		if s.assets[i].SequenceOrder != s.assets[j].SequenceOrder {
			return s.assets[i].SequenceOrder < s.assets[j].SequenceOrder
		}
		return s.assets[i].ID < s.assets[j].ID
	})
	if preselectAll {
		for _, a := range s.assets {
			s.selected[a.ID] = true
		}
	}
}

// Assets returns the tracked assets in composition order.
func (s *Selection) Assets() []model.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Asset, len(s.assets))
	copy(out, s.assets)
	return out
}

// Toggle flips an asset's membership in the selection. Assets currently
// regenerating are left untouched. Returns the resulting selected state.
func (s *Selection) Toggle(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regenerating[id] {
		return s.selected[id]
	}
	if s.selected[id] {
		delete(s.selected, id)
		return false
	}
	if s.knownLocked(id) {
		s.selected[id] = true
		return true
	}
	return false
}

func (s *Selection) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assets {
		if !s.regenerating[a.ID] {
			s.selected[a.ID] = true
		}
	}
}

func (s *Selection) DeselectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.selected {
		if !s.regenerating[id] {
			delete(s.selected, id)
		}
	}
}

func (s *Selection) IsSelected(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[id]
}

func (s *Selection) IsRegenerating(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regenerating[id]
}

// RegenerationActive reports whether any asset is mid-regeneration; video
// creation is blocked while it returns true.
func (s *Selection) RegenerationActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regenerating) > 0
}

// SelectedAssets returns the selected assets in composition order.
func (s *Selection) SelectedAssets() []model.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Asset, 0, len(s.selected))
	for _, a := range s.assets {
		if s.selected[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// UsableSelected returns the selected assets that satisfy the composition
// invariant (completed, file present, valid id). This strict filter is
// authoritative regardless of what the selection holds.
func (s *Selection) UsableSelected() []model.Asset {
	selected := s.SelectedAssets()
	out := make([]model.Asset, 0, len(selected))
	for _, a := range selected {
		if a.Usable() {
			out = append(out, a)
		}
	}
	return out
}

func (s *Selection) Counts() (selected, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selected), len(s.assets)
}

// BeginRegeneration marks the asset as regenerating: it leaves the confirmed
// selection immediately, and whether it was selected is remembered for
// restoration. All effects apply atomically.
func (s *Selection) BeginRegeneration(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownLocked(id) {
		return ErrUnknownAsset
	}
	if s.regenerating[id] {
		return ErrAlreadyRegenerating
	}
	if s.selected[id] {
		s.previouslySelected[id] = true
		delete(s.selected, id)
	}
	s.regenerating[id] = true
	return nil
}

// CompleteRegeneration stores the replacement asset in place (id and
// sequence order are preserved from the original) and restores the selection
// if the asset was selected when regeneration started.
func (s *Selection) CompleteRegeneration(updated model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assets {
		if a.ID != updated.ID {
			continue
		}
		a.FileURL = updated.FileURL
		a.Status = updated.Status
		s.assets[i] = a
		break
	}
	delete(s.regenerating, updated.ID)
	if s.previouslySelected[updated.ID] {
		s.selected[updated.ID] = true
		delete(s.previouslySelected, updated.ID)
	}
}

// FailRegeneration abandons the regeneration: the asset stays available but
// unselected, requiring explicit re-selection. Other assets are untouched.
func (s *Selection) FailRegeneration(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regenerating, id)
	delete(s.previouslySelected, id)
}

func (s *Selection) knownLocked(id int64) bool {
	for _, a := range s.assets {
		if a.ID == id {
			return true
		}
	}
	return false
}
