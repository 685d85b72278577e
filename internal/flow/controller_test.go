package flow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chronoreel/internal/gateway"
	"chronoreel/internal/history"
	"chronoreel/internal/model"
)

type fakeGateway struct {
	createProject func(ctx context.Context, req gateway.CreateProjectRequest) (model.Project, error)
	project       func(ctx context.Context, id int64) (model.Project, error)
	startImages   func(ctx context.Context, projectID int64) (model.Task, error)
	regenerate    func(ctx context.Context, projectID, assetID int64) (model.Task, error)
	assets        func(ctx context.Context, projectID int64, assetType string) ([]model.Asset, error)
	createVideo   func(ctx context.Context, projectID int64, req gateway.CreateVideoRequest) (model.Task, error)
	taskStatus    func(ctx context.Context, taskID string) (model.Task, error)
}

func (f *fakeGateway) CreateProject(ctx context.Context, req gateway.CreateProjectRequest) (model.Project, error) {
	return f.createProject(ctx, req)
}

func (f *fakeGateway) Project(ctx context.Context, id int64) (model.Project, error) {
	return f.project(ctx, id)
}

func (f *fakeGateway) StartImageGeneration(ctx context.Context, projectID int64) (model.Task, error) {
	return f.startImages(ctx, projectID)
}

func (f *fakeGateway) RegenerateAsset(ctx context.Context, projectID, assetID int64) (model.Task, error) {
	return f.regenerate(ctx, projectID, assetID)
}

func (f *fakeGateway) Assets(ctx context.Context, projectID int64, assetType string) ([]model.Asset, error) {
	return f.assets(ctx, projectID, assetType)
}

func (f *fakeGateway) CreateVideo(ctx context.Context, projectID int64, req gateway.CreateVideoRequest) (model.Task, error) {
	return f.createVideo(ctx, projectID, req)
}

func (f *fakeGateway) TaskStatus(ctx context.Context, taskID string) (model.Task, error) {
	return f.taskStatus(ctx, taskID)
}

func intp(n int) *int { return &n }

// happyGateway returns a fake that walks the full flow without errors: one
// project, a two-observation image task, three completed assets, and a video
// task resolving directly to a URL.
func happyGateway() *fakeGateway {
	var mu sync.Mutex
	imagePolls := 0
	videoPolls := 0
	return &fakeGateway{
		createProject: func(_ context.Context, req gateway.CreateProjectRequest) (model.Project, error) {
			return model.Project{ID: 7, Title: req.Title, EraPreset: req.EraPreset, Duration: req.Duration, Ratio: req.Ratio, Status: "created"}, nil
		},
		project: func(context.Context, int64) (model.Project, error) {
			return model.Project{ID: 7, Status: "generating_video"}, nil
		},
		startImages: func(context.Context, int64) (model.Task, error) {
			return model.Task{TaskID: "img-1", Status: model.TaskStarted}, nil
		},
		assets: func(context.Context, int64, string) ([]model.Asset, error) {
			return []model.Asset{
				{ID: 1, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/1.png", SequenceOrder: 1},
				{ID: 2, AssetType: model.AssetTypeImage, Status: model.TaskCompleted, FileURL: "https://cdn/2.png", SequenceOrder: 2},
				{ID: 3, AssetType: model.AssetTypeImage, Status: model.TaskRunning, SequenceOrder: 3},
			}, nil
		},
		createVideo: func(context.Context, int64, gateway.CreateVideoRequest) (model.Task, error) {
			return model.Task{TaskID: "vid-1", Status: model.TaskStarted}, nil
		},
		taskStatus: func(_ context.Context, taskID string) (model.Task, error) {
			mu.Lock()
			defer mu.Unlock()
			switch taskID {
			case "img-1":
				imagePolls++
				if imagePolls < 2 {
					return model.Task{TaskID: taskID, Status: model.TaskRunning, Progress: intp(40), Message: "Generating images"}, nil
				}
				return model.Task{TaskID: taskID, Status: model.TaskCompleted, Progress: intp(100)}, nil
			case "vid-1":
				videoPolls++
				if videoPolls < 2 {
					return model.Task{TaskID: taskID, Status: model.TaskRunning, Progress: intp(50)}, nil
				}
				return model.Task{
					TaskID: taskID,
					Status: model.TaskCompleted,
					Result: &model.TaskResult{FinalVideoURL: "https://cdn/final.mp4"},
				}, nil
			}
			return model.Task{}, errors.New("unknown task " + taskID)
		},
	}
}

func testController(t *testing.T, gw Gateway, hooks Hooks) *Controller {
	t.Helper()
	c := NewController(Options{
		Gateway: gw,
		Hooks:   hooks,
		Budgets: Budgets{
			ImageAttempts:     20,
			VideoAttempts:     20,
			Interval:          time.Millisecond,
			RegenAttempts:     20,
			RegenInterval:     time.Millisecond,
			ReconcileInterval: 2 * time.Millisecond,
		},
	})
	t.Cleanup(c.Close)
	return c
}

func testRequest() Request {
	return Request{Title: "Roma", EraPreset: "roma_antica", Duration: 10, Ratio: "720:1280"}
}

func runToReview(t *testing.T, c *Controller, ctx context.Context) {
	t.Helper()
	if got := c.Run(ctx, testRequest()); got != model.PhaseReviewingImages {
		t.Fatalf("Run() parked in %q, want %q", got, model.PhaseReviewingImages)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunParksInReviewWithCompletedAssetsSelected(t *testing.T) {
	var phases []model.Phase
	var mu sync.Mutex
	c := testController(t, happyGateway(), Hooks{
		PhaseChanged: func(_, to model.Phase) {
			mu.Lock()
			phases = append(phases, to)
			mu.Unlock()
		},
	})
	runToReview(t, c, context.Background())

	st := c.State()
	if len(st.Assets) != 2 {
		t.Fatalf("review holds %d assets, want 2 (incomplete asset must be filtered)", len(st.Assets))
	}
	for _, a := range st.Assets {
		if !st.Selected[a.ID] {
			t.Errorf("asset %d not preselected", a.ID)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	want := []model.Phase{model.PhaseGeneratingImages, model.PhaseReviewingImages}
	if len(phases) != len(want) {
		t.Fatalf("phase changes = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase changes = %v, want %v", phases, want)
		}
	}
}

func TestConfirmSelectionCompletesWithDirectURL(t *testing.T) {
	var readyURL string
	gw := happyGateway()
	historyPath := filepath.Join(t.TempDir(), "history.json")
	c := NewController(Options{
		Gateway:     gw,
		Hooks:       Hooks{VideoReady: func(url string) { readyURL = url }},
		Budgets:     Budgets{ImageAttempts: 20, VideoAttempts: 20, Interval: time.Millisecond, RegenAttempts: 20, RegenInterval: time.Millisecond, ReconcileInterval: time.Millisecond},
		HistoryPath: historyPath,
	})
	defer c.Close()

	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}
	if got := c.Phase(); got != model.PhaseCompleted {
		t.Fatalf("phase = %q, want %q", got, model.PhaseCompleted)
	}
	if got := c.VideoURL(); got != "https://cdn/final.mp4" {
		t.Errorf("VideoURL() = %q", got)
	}
	if readyURL != "https://cdn/final.mp4" {
		t.Errorf("VideoReady hook got %q", readyURL)
	}

	entries, err := history.Read(historyPath)
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	if len(entries) != 1 || entries[0].ProjectID != 7 {
		t.Errorf("history = %+v, want one entry for project 7", entries)
	}
}

func TestConfirmSelectionResolvesChainedTask(t *testing.T) {
	gw := happyGateway()
	var mu sync.Mutex
	mergePolls := 0
	base := gw.taskStatus
	gw.taskStatus = func(ctx context.Context, taskID string) (model.Task, error) {
		switch taskID {
		case "vid-1":
			return model.Task{
				TaskID: taskID,
				Status: model.TaskCompleted,
				Result: &model.TaskResult{FinalTaskID: "merge-1"},
			}, nil
		case "merge-1":
			mu.Lock()
			defer mu.Unlock()
			mergePolls++
			if mergePolls < 2 {
				return model.Task{TaskID: taskID, Status: model.TaskRunning, Progress: intp(95)}, nil
			}
			return model.Task{
				TaskID: taskID,
				Status: model.TaskCompleted,
				Result: &model.TaskResult{FinalVideoURL: "https://cdn/merged.mp4"},
			}, nil
		}
		return base(ctx, taskID)
	}
	c := testController(t, gw, Hooks{})

	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}
	if got := c.VideoURL(); got != "https://cdn/merged.mp4" {
		t.Errorf("VideoURL() = %q, want merged url", got)
	}
	if got := c.Phase(); got != model.PhaseCompleted {
		t.Errorf("phase = %q, want %q", got, model.PhaseCompleted)
	}
}

func TestVideoTaskWithoutResultFallsBackToProjectFetch(t *testing.T) {
	gw := happyGateway()
	base := gw.taskStatus
	gw.taskStatus = func(ctx context.Context, taskID string) (model.Task, error) {
		if taskID == "vid-1" {
			return model.Task{TaskID: taskID, Status: model.TaskCompleted}, nil
		}
		return base(ctx, taskID)
	}
	gw.project = func(context.Context, int64) (model.Project, error) {
		return model.Project{ID: 7, Status: "completed", FinalVideoURL: "https://cdn/from-project.mp4"}, nil
	}
	c := testController(t, gw, Hooks{})

	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}
	if got := c.VideoURL(); got != "https://cdn/from-project.mp4" {
		t.Errorf("VideoURL() = %q, want project-sourced url", got)
	}
	if got := c.Phase(); got != model.PhaseCompleted {
		t.Errorf("phase = %q, want %q", got, model.PhaseCompleted)
	}
}

func TestCompletedWithoutURLReconcilesInBackground(t *testing.T) {
	gw := happyGateway()
	base := gw.taskStatus
	gw.taskStatus = func(ctx context.Context, taskID string) (model.Task, error) {
		if taskID == "vid-1" {
			return model.Task{TaskID: taskID, Status: model.TaskCompleted}, nil
		}
		return base(ctx, taskID)
	}
	var mu sync.Mutex
	fetches := 0
	gw.project = func(context.Context, int64) (model.Project, error) {
		mu.Lock()
		defer mu.Unlock()
		fetches++
		if fetches < 3 {
			return model.Project{ID: 7, Status: "completed"}, nil
		}
		return model.Project{ID: 7, Status: "completed", FinalVideoURL: "https://cdn/late.mp4"}, nil
	}
	var readyURL string
	var readyMu sync.Mutex
	c := testController(t, gw, Hooks{VideoReady: func(url string) {
		readyMu.Lock()
		readyURL = url
		readyMu.Unlock()
	}})

	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}
	if got := c.Phase(); got != model.PhaseCompleted {
		t.Fatalf("phase = %q, want %q before the URL lands", got, model.PhaseCompleted)
	}
	waitFor(t, "reconciled video url", func() bool { return c.VideoURL() != "" })
	if got := c.VideoURL(); got != "https://cdn/late.mp4" {
		t.Errorf("VideoURL() = %q, want late-arriving url", got)
	}
	waitFor(t, "video ready hook", func() bool {
		readyMu.Lock()
		defer readyMu.Unlock()
		return readyURL == "https://cdn/late.mp4"
	})
}

func TestVideoPollFailureChecksProjectBeforeErroring(t *testing.T) {
	gw := happyGateway()
	base := gw.taskStatus
	gw.taskStatus = func(ctx context.Context, taskID string) (model.Task, error) {
		if taskID == "vid-1" {
			return model.Task{TaskID: taskID, Status: model.TaskFailed, Message: "render crashed"}, nil
		}
		return base(ctx, taskID)
	}
	gw.project = func(context.Context, int64) (model.Project, error) {
		return model.Project{ID: 7, Status: "completed", FinalVideoURL: "https://cdn/actually-done.mp4"}, nil
	}
	c := testController(t, gw, Hooks{})

	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}
	if got := c.Phase(); got != model.PhaseCompleted {
		t.Errorf("phase = %q, want %q (project record trumps failed task)", got, model.PhaseCompleted)
	}
	if got := c.VideoURL(); got != "https://cdn/actually-done.mp4" {
		t.Errorf("VideoURL() = %q", got)
	}
}

func TestVideoPollFailureWithoutCompletionErrors(t *testing.T) {
	gw := happyGateway()
	base := gw.taskStatus
	gw.taskStatus = func(ctx context.Context, taskID string) (model.Task, error) {
		if taskID == "vid-1" {
			return model.Task{TaskID: taskID, Status: model.TaskFailed, Message: "render crashed"}, nil
		}
		return base(ctx, taskID)
	}
	c := testController(t, gw, Hooks{})

	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}
	st := c.State()
	if st.Phase != model.PhaseError {
		t.Fatalf("phase = %q, want %q", st.Phase, model.PhaseError)
	}
	if st.ErrMsg == "" {
		t.Error("error phase carries no user-facing message")
	}
}

func TestConfirmSelectionPreconditions(t *testing.T) {
	gw := happyGateway()
	c := testController(t, gw, Hooks{})
	runToReview(t, c, context.Background())

	c.DeselectAll()
	if err := c.ConfirmSelection(context.Background()); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("empty selection error = %v, want ErrEmptySelection", err)
	}
	if got := c.Phase(); got != model.PhaseReviewingImages {
		t.Errorf("phase moved to %q on a rejected confirm", got)
	}
	c.SelectAll()

	// Park a regeneration in flight: the start call blocks until released.
	release := make(chan struct{})
	gw.regenerate = func(context.Context, int64, int64) (model.Task, error) {
		<-release
		return model.Task{}, errors.New("aborted")
	}
	if err := c.RegenerateAsset(context.Background(), 1); err != nil {
		t.Fatalf("RegenerateAsset: %v", err)
	}
	if err := c.ConfirmSelection(context.Background()); !errors.Is(err, ErrRegenerationActive) {
		t.Errorf("active regeneration error = %v, want ErrRegenerationActive", err)
	}
	close(release)
}

func TestConfirmSelectionRejectsWrongPhase(t *testing.T) {
	c := testController(t, happyGateway(), Hooks{})
	if err := c.ConfirmSelection(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("confirm before review error = %v, want ErrWrongPhase", err)
	}
}

func TestRegenerateAssetReplacesAndRestores(t *testing.T) {
	gw := happyGateway()
	gw.regenerate = func(_ context.Context, _ int64, assetID int64) (model.Task, error) {
		return model.Task{TaskID: "regen-1", Status: model.TaskStarted}, nil
	}
	base := gw.taskStatus
	gw.taskStatus = func(ctx context.Context, taskID string) (model.Task, error) {
		if taskID == "regen-1" {
			return model.Task{
				TaskID: taskID,
				Status: model.TaskCompleted,
				Result: &model.TaskResult{Asset: &model.Asset{
					ID: 1, AssetType: model.AssetTypeImage, Status: model.TaskCompleted,
					FileURL: "https://cdn/1-v2.png", SequenceOrder: 1,
				}},
			}, nil
		}
		return base(ctx, taskID)
	}
	c := testController(t, gw, Hooks{})
	runToReview(t, c, context.Background())

	if err := c.RegenerateAsset(context.Background(), 1); err != nil {
		t.Fatalf("RegenerateAsset: %v", err)
	}
	waitFor(t, "regeneration to finish", func() bool {
		st := c.State()
		return !st.Regenerating[1]
	})

	st := c.State()
	if !st.Selected[1] {
		t.Error("previously selected asset not restored")
	}
	for _, a := range st.Assets {
		if a.ID == 1 && a.FileURL != "https://cdn/1-v2.png" {
			t.Errorf("asset 1 FileURL = %q, want replacement", a.FileURL)
		}
	}
}

func TestRegenerateAssetFailureLeavesAssetDeselected(t *testing.T) {
	gw := happyGateway()
	gw.regenerate = func(context.Context, int64, int64) (model.Task, error) {
		return model.Task{}, &gateway.Error{Status: 500, Message: "boom"}
	}
	c := testController(t, gw, Hooks{})
	runToReview(t, c, context.Background())

	if err := c.RegenerateAsset(context.Background(), 1); err != nil {
		t.Fatalf("RegenerateAsset: %v", err)
	}
	waitFor(t, "regeneration to fail", func() bool {
		st := c.State()
		return !st.Regenerating[1]
	})
	st := c.State()
	if st.Selected[1] {
		t.Error("failed regeneration left the asset selected")
	}
	if !st.Selected[2] {
		t.Error("unrelated selection disturbed")
	}
	if st.Phase != model.PhaseReviewingImages {
		t.Errorf("phase = %q, regeneration failure must not leave review", st.Phase)
	}
}

func TestRegenerateAssetErrors(t *testing.T) {
	c := testController(t, happyGateway(), Hooks{})
	if err := c.RegenerateAsset(context.Background(), 1); !errors.Is(err, ErrNoProject) {
		t.Errorf("regenerate before run error = %v, want ErrNoProject", err)
	}
	runToReview(t, c, context.Background())
	if err := c.RegenerateAsset(context.Background(), 99); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("unknown asset error = %v, want ErrUnknownAsset", err)
	}
}

func TestRetryRerunsStoredRequest(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	gw := happyGateway()
	gw.createProject = func(_ context.Context, req gateway.CreateProjectRequest) (model.Project, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return model.Project{}, &gateway.Error{Status: 503, Message: "unavailable"}
		}
		if req.EraPreset != "roma_antica" {
			return model.Project{}, errors.New("retry lost the original request")
		}
		return model.Project{ID: 7, Status: "created"}, nil
	}
	c := testController(t, gw, Hooks{})

	if got := c.Run(context.Background(), testRequest()); got != model.PhaseError {
		t.Fatalf("first run parked in %q, want %q", got, model.PhaseError)
	}
	if got := c.Retry(context.Background()); got != model.PhaseReviewingImages {
		t.Fatalf("retry parked in %q, want %q", got, model.PhaseReviewingImages)
	}
}

func TestStartOverResetsEverything(t *testing.T) {
	c := testController(t, happyGateway(), Hooks{})
	runToReview(t, c, context.Background())
	if err := c.ConfirmSelection(context.Background()); err != nil {
		t.Fatalf("ConfirmSelection: %v", err)
	}

	c.StartOver()
	st := c.State()
	if st.Phase != model.PhaseCreating {
		t.Errorf("phase = %q, want %q", st.Phase, model.PhaseCreating)
	}
	if st.Project != nil || st.VideoURL != "" || len(st.Assets) != 0 {
		t.Errorf("state not cleared: %+v", st)
	}
}

func TestImageGenerationFailureEntersErrorPhase(t *testing.T) {
	gw := happyGateway()
	gw.startImages = func(context.Context, int64) (model.Task, error) {
		return model.Task{}, &gateway.Error{Status: 422, Message: "no presets"}
	}
	c := testController(t, gw, Hooks{})
	if got := c.Run(context.Background(), testRequest()); got != model.PhaseError {
		t.Fatalf("Run() = %q, want %q", got, model.PhaseError)
	}
	if msg := c.State().ErrMsg; msg == "" {
		t.Error("error phase carries no message")
	}
}
