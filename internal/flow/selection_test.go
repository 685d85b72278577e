package flow

import (
	"errors"
	"testing"

	"chronoreel/internal/model"
)

func reviewAssets() []model.Asset {
	return []model.Asset{
		{ID: 3, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/3.png", SequenceOrder: 3},
		{ID: 1, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/1.png", SequenceOrder: 1},
		{ID: 2, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/2.png", SequenceOrder: 2},
	}
}

func assetIDs(assets []model.Asset) []int64 {
	ids := make([]int64, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	return ids
}

func TestSelectionResetOrdersAndPreselects(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), true)

	got := assetIDs(s.Assets())
	want := []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("asset order = %v, want %v", got, want)
		}
	}
	if sel, total := s.Counts(); sel != 3 || total != 3 {
		t.Errorf("Counts() = %d/%d, want 3/3", sel, total)
	}
}

func TestSelectionToggle(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), true)

	if got := s.Toggle(2); got {
		t.Error("Toggle(2) = true after deselect, want false")
	}
	if s.IsSelected(2) {
		t.Error("asset 2 still selected after toggle")
	}
	if got := s.Toggle(2); !got {
		t.Error("Toggle(2) = false after reselect, want true")
	}
	if got := s.Toggle(99); got {
		t.Error("Toggle of unknown asset = true, want false")
	}
}

func TestSelectionSelectAllDeselectAll(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), false)

	if sel, _ := s.Counts(); sel != 0 {
		t.Fatalf("fresh selection has %d selected, want 0", sel)
	}
	s.SelectAll()
	if sel, _ := s.Counts(); sel != 3 {
		t.Errorf("after SelectAll %d selected, want 3", sel)
	}
	s.DeselectAll()
	if sel, _ := s.Counts(); sel != 0 {
		t.Errorf("after DeselectAll %d selected, want 0", sel)
	}
}

func TestSelectionUsableFilter(t *testing.T) {
	assets := reviewAssets()
	assets[1].FileURL = "" // id 1 after sorting
	s := NewSelection()
	s.Reset(assets, true)

	usable := s.UsableSelected()
	if len(usable) != 2 {
		t.Fatalf("UsableSelected() returned %d assets, want 2", len(usable))
	}
	for _, a := range usable {
		if a.ID == 1 {
			t.Error("asset without file url passed the usability filter")
		}
	}
}

func TestRegenerationLifecycleRestoresSelection(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), true)

	if err := s.BeginRegeneration(2); err != nil {
		t.Fatalf("BeginRegeneration: %v", err)
	}
	if s.IsSelected(2) {
		t.Error("asset 2 still selected while regenerating")
	}
	if !s.IsRegenerating(2) {
		t.Error("asset 2 not marked regenerating")
	}
	if !s.RegenerationActive() {
		t.Error("RegenerationActive() = false with one regeneration in flight")
	}
	// Mid-regeneration the asset cannot rejoin the selection.
	if got := s.Toggle(2); got {
		t.Error("Toggle of regenerating asset = true, want false")
	}

	s.CompleteRegeneration(model.Asset{ID: 2, Status: model.TaskCompleted, FileURL: "https://cdn/2-v2.png"})
	if !s.IsSelected(2) {
		t.Error("previously selected asset not restored after regeneration")
	}
	if s.RegenerationActive() {
		t.Error("RegenerationActive() = true after completion")
	}
	for _, a := range s.Assets() {
		if a.ID == 2 {
			if a.FileURL != "https://cdn/2-v2.png" {
				t.Errorf("FileURL = %q, want replacement url", a.FileURL)
			}
			if a.SequenceOrder != 2 {
				t.Errorf("SequenceOrder = %d, want original 2", a.SequenceOrder)
			}
		}
	}
}

func TestRegenerationSuccessDoesNotSelectUnselected(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), true)
	s.Toggle(2) // deselect before regenerating

	if err := s.BeginRegeneration(2); err != nil {
		t.Fatalf("BeginRegeneration: %v", err)
	}
	s.CompleteRegeneration(model.Asset{ID: 2, Status: model.TaskCompleted, FileURL: "https://cdn/2-v2.png"})
	if s.IsSelected(2) {
		t.Error("unselected asset joined the selection after regeneration")
	}
}

func TestRegenerationFailureAbandonsSelection(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), true)

	if err := s.BeginRegeneration(2); err != nil {
		t.Fatalf("BeginRegeneration: %v", err)
	}
	s.FailRegeneration(2)

	if s.IsSelected(2) {
		t.Error("failed regeneration restored the selection")
	}
	if s.IsRegenerating(2) {
		t.Error("asset 2 still regenerating after failure")
	}
	if !s.IsSelected(1) || !s.IsSelected(3) {
		t.Error("other selections disturbed by the failure")
	}
	// Explicit re-selection still works.
	if got := s.Toggle(2); !got {
		t.Error("re-selecting after failed regeneration did not stick")
	}
}

func TestBeginRegenerationErrors(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), true)

	if err := s.BeginRegeneration(99); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("unknown asset error = %v, want ErrUnknownAsset", err)
	}
	if err := s.BeginRegeneration(2); err != nil {
		t.Fatalf("BeginRegeneration: %v", err)
	}
	if err := s.BeginRegeneration(2); !errors.Is(err, ErrAlreadyRegenerating) {
		t.Errorf("duplicate regeneration error = %v, want ErrAlreadyRegenerating", err)
	}
}

func TestSelectedAssetsCompositionOrder(t *testing.T) {
	s := NewSelection()
	s.Reset(reviewAssets(), false)
	// Select in reverse order; composition order must win.
	s.Toggle(3)
	s.Toggle(1)

	got := assetIDs(s.SelectedAssets())
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("SelectedAssets order = %v, want [1 3]", got)
	}
}
