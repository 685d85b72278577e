// Package flow drives a video generation run end to end: project creation,
// image generation, review and per-asset regeneration, video rendering with
// chained-task resolution, and completion. All state lives in one Controller
// guarded by a single mutex; every external event mutates it in one critical
// section, and hooks fire outside the lock.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chronoreel/internal/gateway"
	"chronoreel/internal/history"
	"chronoreel/internal/logging"
	"chronoreel/internal/model"
	"chronoreel/internal/task"
)

type Budgets struct {
	ImageAttempts     int
	VideoAttempts     int
	Interval          time.Duration
	RegenAttempts     int
	RegenInterval     time.Duration
	ReconcileInterval time.Duration

	// SettleDelay is the wait between a finished generation task and the
	// asset fetch, giving backend storage a moment to catch up.
	SettleDelay time.Duration

	// ResolveDelay is the wait before the project refetch when a finished
	// video task named no URL and no chained task.
	ResolveDelay time.Duration
}

func DefaultBudgets() Budgets {
	return Budgets{
		ImageAttempts:     200,
		VideoAttempts:     120,
		Interval:          3 * time.Second,
		RegenAttempts:     150,
		RegenInterval:     2 * time.Second,
		ReconcileInterval: 3 * time.Second,
		SettleDelay:       time.Second,
		ResolveDelay:      2 * time.Second,
	}
}

// Hooks receive flow events for rendering. All fields are optional; they are
// invoked without the controller lock held, one event at a time per source.
type Hooks struct {
	PhaseChanged  func(from, to model.Phase)
	Progress      func(pct int, message string)
	AssetsUpdated func(assets []model.Asset)
	VideoReady    func(url string)
}

// Request is the user's project configuration for one generation run.
type Request struct {
	Title       string
	EraPreset   string
	Duration    int
	Ratio       string
	MusicID     *int64
	OverlayText string
}

type Options struct {
	Gateway     Gateway
	Hooks       Hooks
	Budgets     Budgets
	Logger      *logrus.Logger
	HistoryPath string
}

type Controller struct {
	gw          Gateway
	hooks       Hooks
	budgets     Budgets
	log         *logrus.Entry
	historyPath string

	rootCtx    context.Context
	rootCancel context.CancelFunc

	sel *Selection

	mu              sync.Mutex
	phase           model.Phase
	request         Request
	project         *model.Project
	videoURL        string
	errMsg          string
	progress        int
	message         string
	videoReadyFired bool
	historyRecorded bool
	reconcileCancel context.CancelFunc
	reconcileBusy   bool
}

func NewController(opts Options) *Controller {
	budgets := opts.Budgets
	def := DefaultBudgets()
	if budgets.ImageAttempts <= 0 {
		budgets.ImageAttempts = def.ImageAttempts
	}
	if budgets.VideoAttempts <= 0 {
		budgets.VideoAttempts = def.VideoAttempts
	}
	if budgets.Interval <= 0 {
		budgets.Interval = def.Interval
	}
	if budgets.RegenAttempts <= 0 {
		budgets.RegenAttempts = def.RegenAttempts
	}
	if budgets.RegenInterval <= 0 {
		budgets.RegenInterval = def.RegenInterval
	}
	if budgets.ReconcileInterval <= 0 {
		budgets.ReconcileInterval = def.ReconcileInterval
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gw:          opts.Gateway,
		hooks:       opts.Hooks,
		budgets:     budgets,
		log:         log.WithField("component", "flow"),
		historyPath: opts.HistoryPath,
		rootCtx:     ctx,
		rootCancel:  cancel,
		sel:         NewSelection(),
		phase:       model.PhaseCreating,
	}
}

// Close cancels every loop the controller owns: regeneration polls and the
// background reconciliation. Pending hooks from those loops will not fire.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopReconcileLocked()
	c.mu.Unlock()
	c.rootCancel()
}

// State is a consistent snapshot for rendering.
type State struct {
	Phase        model.Phase
	Project      *model.Project
	Progress     int
	Message      string
	VideoURL     string
	ErrMsg       string
	Assets       []model.Asset
	Selected     map[int64]bool
	Regenerating map[int64]bool
}

func (c *Controller) State() State {
	assets := c.sel.Assets()
	selected := make(map[int64]bool, len(assets))
	regenerating := make(map[int64]bool)
	for _, a := range assets {
		if c.sel.IsSelected(a.ID) {
			selected[a.ID] = true
		}
		if c.sel.IsRegenerating(a.ID) {
			regenerating[a.ID] = true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Phase:        c.phase,
		Progress:     c.progress,
		Message:      c.message,
		VideoURL:     c.videoURL,
		ErrMsg:       c.errMsg,
		Assets:       assets,
		Selected:     selected,
		Regenerating: regenerating,
	}
	if c.project != nil {
		p := *c.project
		st.Project = &p
	}
	return st
}

func (c *Controller) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) VideoURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoURL
}

// Run executes the flow from project creation until it parks in
// reviewing-images, completed, or error. Failures never escape as errors;
// they land in the error phase with a user-facing message.
func (c *Controller) Run(ctx context.Context, req Request) model.Phase {
	c.mu.Lock()
	c.request = req
	emits := c.resetLocked()
	c.mu.Unlock()
	c.emit(emits)
	return c.run(ctx)
}

// Retry re-runs the stored request from the error phase.
func (c *Controller) Retry(ctx context.Context) model.Phase {
	c.mu.Lock()
	phase := c.phase
	req := c.request
	c.mu.Unlock()
	if phase != model.PhaseError {
		return phase
	}
	return c.Run(ctx, req)
}

// StartOver discards all local state, returning control to project setup.
func (c *Controller) StartOver() {
	c.mu.Lock()
	emits := c.resetLocked()
	c.mu.Unlock()
	c.emit(emits)
}

func (c *Controller) resetLocked() []func() {
	c.stopReconcileLocked()
	emits := c.setPhaseLocked(model.PhaseCreating)
	c.project = nil
	c.videoURL = ""
	c.errMsg = ""
	c.progress = 0
	c.message = ""
	c.videoReadyFired = false
	c.historyRecorded = false
	c.sel.Reset(nil, false)
	return emits
}

func (c *Controller) run(ctx context.Context) model.Phase {
	c.progressUpdate(-1, "Creating your project...")

	c.mu.Lock()
	req := c.request
	c.mu.Unlock()

	project, err := c.gw.CreateProject(ctx, gateway.CreateProjectRequest{
		Title:     req.Title,
		EraPreset: req.EraPreset,
		Duration:  req.Duration,
		Ratio:     req.Ratio,
	})
	if err != nil {
		return c.fail("Failed to create project. Please try again.", err)
	}
	c.log.WithField("project_id", project.ID).Info("project created")

	if c.applySnapshot(project) {
		return c.Phase()
	}
	c.transition(model.PhaseGeneratingImages)
	return c.runImageFlow(ctx, project.ID)
}

func (c *Controller) runImageFlow(ctx context.Context, projectID int64) model.Phase {
	c.progressUpdate(0, "Starting AI image generation...")

	job, err := c.gw.StartImageGeneration(ctx, projectID)
	if err != nil {
		return c.fail("Image generation failed. Please try again.", err)
	}

	_, err = task.Poll(ctx, c.gw, job.TaskID, task.Options{
		OnProgress: func(st model.Task) {
			c.progressUpdate(st.ProgressValue(), messageOr(st.Message, "Generating images..."))
			c.previewAssets(ctx, projectID)
		},
		MaxAttempts: c.budgets.ImageAttempts,
		Interval:    c.budgets.Interval,
		Logger:      c.log.Logger,
	})
	if err != nil {
		return c.fail("Image generation failed. Please try again.", err)
	}

	// Give backend storage a moment before reading the final asset list.
	if c.budgets.SettleDelay > 0 {
		if err := sleepCtx(ctx, c.budgets.SettleDelay); err != nil {
			return c.fail("Image generation was interrupted.", err)
		}
	}

	assets, err := c.gw.Assets(ctx, projectID, model.AssetTypeImage)
	if err != nil {
		return c.fail("Image generation failed. Please try again.", err)
	}
	completed := completedAssets(assets)
	c.sel.Reset(completed, true)
	c.emitAssets()
	c.log.WithField("assets", len(completed)).Info("image generation finished")

	c.transition(model.PhaseReviewingImages)
	return c.Phase()
}

// previewAssets surfaces partially generated images during the main poll.
// Failures here are logged and otherwise ignored; the poll carries on.
func (c *Controller) previewAssets(ctx context.Context, projectID int64) {
	assets, err := c.gw.Assets(ctx, projectID, model.AssetTypeImage)
	if err != nil {
		c.log.WithError(err).Debug("asset preview fetch failed")
		return
	}
	c.sel.Reset(completedAssets(assets), false)
	c.emitAssets()
}

// ToggleAsset flips an asset in or out of the selection. No-op for assets
// that are mid-regeneration.
func (c *Controller) ToggleAsset(id int64) {
	c.sel.Toggle(id)
	c.emitAssets()
}

func (c *Controller) SelectAll() {
	c.sel.SelectAll()
	c.emitAssets()
}

func (c *Controller) DeselectAll() {
	c.sel.DeselectAll()
	c.emitAssets()
}

// ConfirmSelection launches video generation from the review phase.
// Precondition violations (wrong phase, active regeneration, empty or
// unusable selection) are returned for inline display and change nothing.
// Execution failures move the flow to the error phase and return nil.
func (c *Controller) ConfirmSelection(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != model.PhaseReviewingImages {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	if c.project == nil {
		c.mu.Unlock()
		return ErrNoProject
	}
	projectID := c.project.ID
	req := c.request
	c.mu.Unlock()

	if c.sel.RegenerationActive() {
		return ErrRegenerationActive
	}
	if len(c.sel.SelectedAssets()) == 0 {
		return ErrEmptySelection
	}
	usable := c.sel.UsableSelected()
	if len(usable) == 0 {
		return ErrNoUsableAssets
	}

	ids := make([]int64, 0, len(usable))
	for _, a := range usable {
		ids = append(ids, a.ID)
	}

	c.transition(model.PhaseGeneratingVideo)
	c.progressUpdate(0, "Creating your cinematic video...")
	c.log.WithFields(logrus.Fields{"project_id": projectID, "assets": len(ids)}).Info("video generation starting")

	job, err := c.gw.CreateVideo(ctx, projectID, gateway.CreateVideoRequest{
		SelectedAssetIDs: ids,
		MusicID:          req.MusicID,
		OverlayText:      req.OverlayText,
	})
	if err != nil {
		c.failVideo(ctx, projectID, err)
		return nil
	}

	final, err := c.pollVideoTask(ctx, job.TaskID, "Generating video...")
	if err != nil {
		c.failVideo(ctx, projectID, err)
		return nil
	}
	c.resolveAndComplete(ctx, projectID, final)
	return nil
}

func (c *Controller) pollVideoTask(ctx context.Context, taskID, defaultMessage string) (model.Task, error) {
	return task.Poll(ctx, c.gw, taskID, task.Options{
		OnProgress: func(st model.Task) {
			c.progressUpdate(st.ProgressValue(), messageOr(st.Message, defaultMessage))
		},
		MaxAttempts: c.budgets.VideoAttempts,
		Interval:    c.budgets.Interval,
		Logger:      c.log.Logger,
	})
}

// resolveAndComplete turns a terminal create-video task into a final video
// URL: direct result first, then chained task(s), then a project refetch,
// and finally completion without a URL plus background reconciliation.
func (c *Controller) resolveAndComplete(ctx context.Context, projectID int64, final model.Task) {
	seen := map[string]bool{final.TaskID: true}
	res := resolveVideoResult(final)
	for res.kind == resolvedChained {
		if seen[res.taskID] {
			c.log.WithField("task_id", res.taskID).Warn("chained task cycle, falling back to project fetch")
			res = videoResolution{kind: resolvedUnknown}
			break
		}
		seen[res.taskID] = true
		c.progressUpdate(90, "Creating final video...")
		c.log.WithField("task_id", res.taskID).Info("polling chained video task")

		next, err := c.pollVideoTask(ctx, res.taskID, "Creating final video...")
		if err != nil {
			c.failVideo(ctx, projectID, err)
			return
		}
		res = resolveVideoResult(next)
	}

	if res.kind == resolvedDirect {
		c.completeWithURL(res.url)
		return
	}

	// The task chain never named a URL; the project record is the last
	// authoritative source before giving up on synchronous resolution.
	if c.budgets.ResolveDelay > 0 {
		_ = sleepCtx(ctx, c.budgets.ResolveDelay)
	}
	if snapshot, err := c.gw.Project(ctx, projectID); err == nil {
		if c.applySnapshot(snapshot) && c.VideoURL() != "" {
			return
		}
	} else {
		c.log.WithError(err).Warn("project refetch after video task failed")
	}

	// Completed without a URL: the backend may still be finalizing; the
	// reconciliation loop will pick the URL up when it lands.
	c.transition(model.PhaseCompleted)
	c.progressUpdate(100, "Video is processing...")
	c.startReconcile(projectID)
}

// failVideo gives the project record one chance to prove the video actually
// finished before declaring the attempt failed.
func (c *Controller) failVideo(ctx context.Context, projectID int64, cause error) {
	if snapshot, err := c.gw.Project(ctx, projectID); err == nil {
		if c.applySnapshot(snapshot) && c.VideoURL() != "" {
			c.log.WithError(cause).Info("video poll failed but project reports completion")
			return
		}
	}
	c.fail("Video generation failed. Please try again.", cause)
}

// RegenerateAsset starts a regeneration job for one reviewed image. The
// asset leaves the selection immediately and returns to it (updated) only if
// regeneration succeeds and it was selected before.
func (c *Controller) RegenerateAsset(ctx context.Context, assetID int64) error {
	c.mu.Lock()
	if c.project == nil {
		c.mu.Unlock()
		return ErrNoProject
	}
	if c.phase != model.PhaseReviewingImages {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	projectID := c.project.ID
	c.mu.Unlock()

	if err := c.sel.BeginRegeneration(assetID); err != nil {
		return err
	}
	c.emitAssets()

	// Regeneration outlives the caller's context so that leaving the
	// confirm path does not abandon it; only Close cancels it.
	go c.runRegeneration(c.rootCtx, projectID, assetID)
	return nil
}

func (c *Controller) runRegeneration(ctx context.Context, projectID, assetID int64) {
	log := c.log.WithFields(logrus.Fields{"project_id": projectID, "asset_id": assetID})

	job, err := c.gw.RegenerateAsset(ctx, projectID, assetID)
	if err != nil {
		log.WithError(err).Warn("regeneration start failed")
		c.sel.FailRegeneration(assetID)
		c.emitAssets()
		return
	}

	final, err := task.Poll(ctx, c.gw, job.TaskID, task.Options{
		MaxAttempts: c.budgets.RegenAttempts,
		Interval:    c.budgets.RegenInterval,
		Logger:      c.log.Logger,
	})
	if err != nil {
		log.WithError(err).Warn("regeneration poll failed")
		c.sel.FailRegeneration(assetID)
		c.emitAssets()
		return
	}

	updated, ok := c.replacementAsset(ctx, projectID, assetID, final)
	if !ok {
		log.Warn("regeneration finished but replacement asset not found")
		c.sel.FailRegeneration(assetID)
		c.emitAssets()
		return
	}
	c.sel.CompleteRegeneration(updated)
	c.emitAssets()
	log.Info("asset regenerated")
}

// replacementAsset extracts the regenerated asset from the task result when
// the backend includes it, otherwise refetches the list and matches by id.
func (c *Controller) replacementAsset(ctx context.Context, projectID, assetID int64, final model.Task) (model.Asset, bool) {
	if final.Result != nil && final.Result.Asset != nil && final.Result.Asset.ID == assetID {
		return *final.Result.Asset, true
	}
	assets, err := c.gw.Assets(ctx, projectID, model.AssetTypeImage)
	if err != nil {
		c.log.WithError(err).Warn("asset refetch after regeneration failed")
		return model.Asset{}, false
	}
	for _, a := range assets {
		if a.ID == assetID {
			return a, true
		}
	}
	return model.Asset{}, false
}

// ReconcileProject folds an externally fetched project snapshot into the
// flow (the completion override entry point for hosts that refresh the
// project themselves). Returns true when the flow is now completed.
func (c *Controller) ReconcileProject(snapshot model.Project) bool {
	return c.applySnapshot(snapshot)
}

// applySnapshot is the only place project snapshots enter the controller.
// Returns true when the phase is completed after application.
func (c *Controller) applySnapshot(snapshot model.Project) bool {
	c.mu.Lock()
	cp := snapshot
	c.project = &cp

	newPhase, newURL := reconcileCompletion(c.phase, c.videoURL, snapshot)
	c.videoURL = newURL

	var emits []func()
	if newPhase != c.phase {
		emits = append(emits, c.setPhaseLocked(newPhase)...)
	}
	if c.phase == model.PhaseCompleted && c.videoURL != "" {
		emits = append(emits, c.finishLocked()...)
	}
	completed := c.phase == model.PhaseCompleted
	c.mu.Unlock()

	c.emit(emits)
	return completed
}

func (c *Controller) completeWithURL(url string) {
	c.mu.Lock()
	if c.videoURL == "" {
		c.videoURL = url
	}
	var emits []func()
	if c.phase != model.PhaseCompleted {
		emits = append(emits, c.setPhaseLocked(model.PhaseCompleted)...)
	}
	emits = append(emits, c.finishLocked()...)
	c.mu.Unlock()

	c.progressUpdate(100, "Video ready!")
	c.emit(emits)
}

// finishLocked runs the once-only completion side effects: stop reconciling,
// record history, announce the URL.
func (c *Controller) finishLocked() []func() {
	var emits []func()
	c.stopReconcileLocked()

	if !c.historyRecorded && c.historyPath != "" && c.project != nil && c.videoURL != "" {
		c.historyRecorded = true
		entry := history.Entry{
			ProjectID: c.project.ID,
			Title:     c.project.Title,
			EraPreset: c.project.EraPreset,
			Duration:  c.project.Duration,
			Ratio:     c.project.Ratio,
			VideoURL:  c.videoURL,
		}
		path := c.historyPath
		emits = append(emits, func() {
			if err := history.Append(path, entry); err != nil {
				c.log.WithError(err).Warn("recording history failed")
			}
		})
	}
	if !c.videoReadyFired && c.videoURL != "" && c.hooks.VideoReady != nil {
		c.videoReadyFired = true
		url := c.videoURL
		hook := c.hooks.VideoReady
		emits = append(emits, func() { hook(url) })
	}
	return emits
}

func (c *Controller) startReconcile(projectID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconcileCancel != nil {
		return
	}
	if c.phase != model.PhaseCompleted || c.videoURL != "" {
		return
	}
	ctx, cancel := context.WithCancel(c.rootCtx)
	c.reconcileCancel = cancel
	go c.reconcileLoop(ctx, projectID)
}

func (c *Controller) reconcileLoop(ctx context.Context, projectID int64) {
	ticker := time.NewTicker(c.budgets.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.videoURL != "" || c.phase != model.PhaseCompleted {
			c.stopReconcileLocked()
			c.mu.Unlock()
			return
		}
		if c.reconcileBusy {
			c.mu.Unlock()
			continue
		}
		c.reconcileBusy = true
		c.mu.Unlock()

		snapshot, err := c.gw.Project(ctx, projectID)

		c.mu.Lock()
		c.reconcileBusy = false
		c.mu.Unlock()

		if err != nil {
			c.log.WithError(err).Debug("reconciliation fetch failed")
			continue
		}
		c.applySnapshot(snapshot)

		if c.VideoURL() != "" {
			c.mu.Lock()
			c.stopReconcileLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *Controller) stopReconcileLocked() {
	if c.reconcileCancel != nil {
		c.reconcileCancel()
		c.reconcileCancel = nil
	}
}

func (c *Controller) fail(message string, cause error) model.Phase {
	c.log.WithError(cause).Error(message)
	c.mu.Lock()
	c.errMsg = message
	emits := c.setPhaseLocked(model.PhaseError)
	c.mu.Unlock()
	c.emit(emits)
	return model.PhaseError
}

func (c *Controller) transition(to model.Phase) {
	c.mu.Lock()
	emits := c.setPhaseLocked(to)
	c.mu.Unlock()
	c.emit(emits)
}

// setPhaseLocked validates the transition against the phase table. An
// invalid transition is a programming error: it is logged and dropped rather
// than corrupting the machine.
func (c *Controller) setPhaseLocked(to model.Phase) []func() {
	from := c.phase
	if from == to {
		return nil
	}
	if err := model.TransitionPhase(&c.phase, to); err != nil {
		c.log.WithError(err).Error("phase transition rejected")
		return nil
	}
	if from == model.PhaseCompleted || to == model.PhaseError {
		c.stopReconcileLocked()
	}
	c.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("phase change")
	if c.hooks.PhaseChanged == nil {
		return nil
	}
	hook := c.hooks.PhaseChanged
	return []func(){func() { hook(from, to) }}
}

func (c *Controller) progressUpdate(pct int, message string) {
	c.mu.Lock()
	if pct >= 0 {
		c.progress = pct
	}
	if message != "" {
		c.message = message
	}
	p, m := c.progress, c.message
	c.mu.Unlock()
	if c.hooks.Progress != nil {
		c.hooks.Progress(p, m)
	}
}

func (c *Controller) emitAssets() {
	if c.hooks.AssetsUpdated != nil {
		c.hooks.AssetsUpdated(c.sel.Assets())
	}
}

func (c *Controller) emit(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func completedAssets(assets []model.Asset) []model.Asset {
	out := make([]model.Asset, 0, len(assets))
	for _, a := range assets {
		if a.Status == model.TaskCompleted {
			out = append(out, a)
		}
	}
	return out
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
