package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"chronoreel/internal/config"
	"chronoreel/internal/gateway"
	"chronoreel/internal/history"
	"chronoreel/internal/logging"
	"chronoreel/internal/model"
)

func TestBuildRequestFillsDefaults(t *testing.T) {
	req, err := buildRequest(testOptions(), headlessParams{era: "roma_antica"})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Duration != 10 {
		t.Errorf("Duration = %d, want first offered (10)", req.Duration)
	}
	if req.Ratio != "720:1280" {
		t.Errorf("Ratio = %q, want first offered", req.Ratio)
	}
	if req.MusicID != nil {
		t.Errorf("MusicID = %v, want nil when unset", req.MusicID)
	}
}

func TestBuildRequestRejectsUnknownEra(t *testing.T) {
	_, err := buildRequest(testOptions(), headlessParams{era: "atlantis"})
	if err == nil {
		t.Fatal("expected error for unknown era")
	}
	if !strings.Contains(err.Error(), "roma_antica") {
		t.Errorf("error should list available presets, got %v", err)
	}
}

func TestBuildRequestRejectsUnofferedValues(t *testing.T) {
	if _, err := buildRequest(testOptions(), headlessParams{era: "roma_antica", duration: 45}); err == nil {
		t.Error("expected error for unoffered duration")
	}
	if _, err := buildRequest(testOptions(), headlessParams{era: "roma_antica", ratio: "1:1"}); err == nil {
		t.Error("expected error for unoffered ratio")
	}
	if _, err := buildRequest(testOptions(), headlessParams{era: "roma_antica", music: 99}); err == nil {
		t.Error("expected error for unoffered music track")
	}
}

func TestBuildRequestAcceptsMusicTrack(t *testing.T) {
	req, err := buildRequest(testOptions(), headlessParams{era: "usa_1990", music: 5})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.MusicID == nil || *req.MusicID != 5 {
		t.Errorf("MusicID = %v, want 5", req.MusicID)
	}
}

// scriptedBackend serves a complete happy-path run: one project, an image
// task that completes on the first status query, two completed assets, and a
// video task resolving directly to a URL.
func scriptedBackend(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /projects/options":
			writeJSON(w, testOptions())
		case "POST /projects":
			writeJSON(w, model.Project{ID: 7, EraPreset: "roma_antica", Duration: 10, Ratio: "720:1280", Status: "created"})
		case "POST /projects/7/generate-images":
			writeJSON(w, model.Task{TaskID: "img-1", Status: model.TaskStarted})
		case "GET /tasks/img-1/status":
			writeJSON(w, model.Task{TaskID: "img-1", Status: model.TaskCompleted})
		case "GET /projects/7/assets":
			writeJSON(w, []model.Asset{
				{ID: 1, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/1.png", SequenceOrder: 1},
				{ID: 2, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/2.png", SequenceOrder: 2},
			})
		case "POST /projects/7/create-video":
			var req gateway.CreateVideoRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SelectedAssetIDs) != 2 {
				t.Errorf("create-video request ids = %v (err %v), want both assets", req.SelectedAssetIDs, err)
			}
			writeJSON(w, model.Task{TaskID: "vid-1", Status: model.TaskStarted})
		case "GET /tasks/vid-1/status":
			writeJSON(w, model.Task{
				TaskID: "vid-1",
				Status: model.TaskCompleted,
				Result: &model.TaskResult{FinalVideoURL: "https://cdn/final.mp4"},
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func TestGenerateHeadlessCompletesAgainstScriptedBackend(t *testing.T) {
	srv := scriptedBackend(t)
	defer srv.Close()

	client, err := gateway.New(gateway.Options{BaseURL: srv.URL, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	setup := &commandSetup{
		cfg:      config.Default(),
		client:   client,
		log:      logging.Discard(),
		closeLog: func() {},
	}
	historyPath := filepath.Join(t.TempDir(), "history.json")

	err = runGenerateHeadless(setup, headlessParams{
		historyPath: historyPath,
		era:         "roma_antica",
		jsonOut:     true,
	})
	if err != nil {
		t.Fatalf("runGenerateHeadless: %v", err)
	}

	entries, err := history.Read(historyPath)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(entries) != 1 || entries[0].VideoURL != "https://cdn/final.mp4" {
		t.Errorf("history = %+v, want one entry with the final URL", entries)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("hello world", 8); got != "hello..." {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("hi", 8); got != "hi" {
		t.Errorf("truncateRunes short = %q", got)
	}
}
