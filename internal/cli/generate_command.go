package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"chronoreel/internal/config"
	"chronoreel/internal/flow"
	"chronoreel/internal/history"
	"chronoreel/internal/model"
)

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	historyPath := fs.String("history", history.DefaultPath(), "local history file path")
	title := fs.String("title", "", "project title")
	era := fs.String("era", "", "era preset name (see 'chronoreel options')")
	duration := fs.Int("duration", 0, "video duration in seconds (0 = first offered)")
	ratio := fs.String("ratio", "", "aspect ratio, e.g. 720:1280 (empty = first offered)")
	music := fs.Int64("music", 0, "music track id (0 = none)")
	overlay := fs.String("overlay", "", "overlay text for the final video")
	noInput := fs.Bool("no-input", false, "run without the interactive UI (requires --era)")
	jsonOut := fs.Bool("json", false, "print JSON output (implies --no-input)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	setup, err := setupCommand(trimmed(configPath), true)
	if err != nil {
		return err
	}
	defer setup.Close()

	if *noInput || *jsonOut {
		return runGenerateHeadless(setup, headlessParams{
			historyPath: trimmed(historyPath),
			title:       trimmed(title),
			era:         trimmed(era),
			duration:    *duration,
			ratio:       trimmed(ratio),
			music:       *music,
			overlay:     strings.TrimSpace(*overlay),
			jsonOut:     *jsonOut,
		})
	}

	if !stdinIsTTY() {
		return errors.New("generate requires an interactive terminal (use --no-input --era <preset> otherwise)")
	}
	return runGenerateTUI(setup, trimmed(historyPath))
}

func flowBudgets(cfg config.Config) flow.Budgets {
	b := flow.DefaultBudgets()
	b.ImageAttempts = cfg.Polling.ImageAttempts
	b.VideoAttempts = cfg.Polling.VideoAttempts
	b.Interval = cfg.PollInterval()
	b.RegenAttempts = cfg.Polling.RegenAttempts
	b.RegenInterval = cfg.RegenInterval()
	b.ReconcileInterval = cfg.ReconcileInterval()
	return b
}

type headlessParams struct {
	historyPath string
	title       string
	era         string
	duration    int
	ratio       string
	music       int64
	overlay     string
	jsonOut     bool
}

// runGenerateHeadless drives the whole flow without the UI: all generated
// images are kept for the video, and progress goes to stdout as single-line
// updates (suppressed under --json).
func runGenerateHeadless(setup *commandSetup, params headlessParams) error {
	if params.era == "" {
		return errors.New("--era is required with --no-input (see 'chronoreel options')")
	}

	ctx := context.Background()
	opts, err := setup.client.Options(ctx)
	if err != nil {
		return err
	}
	req, err := buildRequest(opts, params)
	if err != nil {
		return err
	}

	hooks := flow.Hooks{}
	if !params.jsonOut {
		hooks.Progress = func(pct int, message string) {
			fmt.Printf("\r%-70s", fmt.Sprintf("%3d%% %s", clampInt(pct, 0, 100), message))
		}
		hooks.PhaseChanged = func(_, to model.Phase) {
			fmt.Printf("\n== %s\n", to)
		}
	}

	ctrl := flow.NewController(flow.Options{
		Gateway:     setup.client,
		Hooks:       hooks,
		Budgets:     flowBudgets(setup.cfg),
		Logger:      setup.log,
		HistoryPath: params.historyPath,
	})
	defer ctrl.Close()

	phase := ctrl.Run(ctx, req)
	if phase == model.PhaseError {
		return errors.New(ctrl.State().ErrMsg)
	}
	if phase == model.PhaseReviewingImages {
		if err := ctrl.ConfirmSelection(ctx); err != nil {
			return err
		}
	}

	st := ctrl.State()
	if st.Phase == model.PhaseError {
		return errors.New(st.ErrMsg)
	}
	if st.Phase != model.PhaseCompleted {
		return fmt.Errorf("generation ended in unexpected state %q", st.Phase)
	}

	url := waitForVideoURL(ctrl, 2*time.Minute)
	if !params.jsonOut {
		fmt.Println()
	}
	if params.jsonOut {
		out := map[string]any{
			"phase":     string(st.Phase),
			"video_url": url,
		}
		if st.Project != nil {
			out["project_id"] = st.Project.ID
		}
		return printJSON(out)
	}
	if url == "" {
		fmt.Println("video is completed but still processing; check later with:")
		if st.Project != nil {
			fmt.Printf("  chronoreel status --project %d\n", st.Project.ID)
		}
		return nil
	}
	fmt.Printf("video ready: %s\n", url)
	return nil
}

// waitForVideoURL gives the background reconciliation a bounded window to
// surface a late-arriving URL before the headless run exits.
func waitForVideoURL(ctrl *flow.Controller, budget time.Duration) string {
	deadline := time.Now().Add(budget)
	for {
		if url := ctrl.VideoURL(); url != "" {
			return url
		}
		if time.Now().After(deadline) {
			return ""
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// buildRequest validates the requested configuration against what the
// backend offers, filling gaps with the first offered value.
func buildRequest(opts model.AvailableOptions, params headlessParams) (flow.Request, error) {
	presetNames := make([]string, 0, len(opts.EraPresets))
	for _, p := range opts.EraPresets {
		presetNames = append(presetNames, p.PresetName)
	}
	if !containsString(presetNames, params.era) {
		return flow.Request{}, fmt.Errorf("unknown era preset %q (available: %s)", params.era, strings.Join(presetNames, ", "))
	}

	duration := params.duration
	if duration == 0 && len(opts.DurationOptions) > 0 {
		duration = opts.DurationOptions[0]
	}
	if len(opts.DurationOptions) > 0 && !containsInt(opts.DurationOptions, duration) {
		return flow.Request{}, fmt.Errorf("duration %d not offered (available: %v)", duration, opts.DurationOptions)
	}

	ratio := params.ratio
	if ratio == "" && len(opts.AvailableRatios) > 0 {
		ratio = opts.AvailableRatios[0]
	}
	if len(opts.AvailableRatios) > 0 && !containsString(opts.AvailableRatios, ratio) {
		return flow.Request{}, fmt.Errorf("ratio %q not offered (available: %s)", ratio, strings.Join(opts.AvailableRatios, ", "))
	}

	req := flow.Request{
		Title:       params.title,
		EraPreset:   params.era,
		Duration:    duration,
		Ratio:       ratio,
		OverlayText: params.overlay,
	}
	if params.music > 0 {
		found := false
		for _, m := range opts.MusicTracks {
			if m.ID == params.music {
				found = true
				break
			}
		}
		if !found {
			return flow.Request{}, fmt.Errorf("music track %d not offered", params.music)
		}
		id := params.music
		req.MusicID = &id
	}
	return req, nil
}

func runGenerateTUI(setup *commandSetup, historyPath string) error {
	m := newGenerateModel(setup, historyPath)
	defer m.ctrl.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("generate requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(generateModel); ok {
		if fm.fatalErr != nil {
			return fm.fatalErr
		}
		if fm.videoURL != "" {
			fmt.Printf("video ready: %s\n", fm.videoURL)
		}
	}
	return nil
}
