package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chronoreel/internal/flow"
	"chronoreel/internal/gateway"
	"chronoreel/internal/model"
)

type genMode int

const (
	genModeLoading genMode = iota
	genModeEra
	genModeConfig
	genModeWorking
	genModeReview
	genModeDone
	genModeError
)

var (
	genTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	genMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	genErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	genOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	genPanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	genSelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	genAccentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type genFieldKind int

const (
	genFieldString genFieldKind = iota
	genFieldSelect
)

type genField struct {
	Key     string
	Label   string
	Help    string
	Kind    genFieldKind
	Value   string
	Options []string
}

type generateForm struct {
	Fields []genField
	Index  int
	Input  textinput.Model
	Error  string
}

type generateModel struct {
	ctrl        *flow.Controller
	client      *gateway.Client
	sig         chan struct{}
	historyPath string

	mode   genMode
	width  int
	height int

	opts      model.AvailableOptions
	eraCursor int
	form      *generateForm
	spin      spinner.Model

	phase         model.Phase
	progress      int
	message       string
	assets        []model.Asset
	selected      map[int64]bool
	regenerating  map[int64]bool
	videoURL      string
	errMsg        string
	reviewCursor  int
	statusMessage string

	flowStarted bool
	fatalErr    error
}

type genOptionsMsg struct {
	opts model.AvailableOptions
	err  error
}

type stateRefreshMsg struct{}

type flowDoneMsg struct{ phase model.Phase }

type confirmDoneMsg struct{ err error }

type regenStartedMsg struct{ err error }

func newGenerateModel(setup *commandSetup, historyPath string) generateModel {
	sig := make(chan struct{}, 1)
	notify := func() {
		select {
		case sig <- struct{}{}:
		default:
		}
	}
	ctrl := flow.NewController(flow.Options{
		Gateway: setup.client,
		Hooks: flow.Hooks{
			PhaseChanged:  func(model.Phase, model.Phase) { notify() },
			Progress:      func(int, string) { notify() },
			AssetsUpdated: func([]model.Asset) { notify() },
			VideoReady:    func(string) { notify() },
		},
		Budgets:     flowBudgets(setup.cfg),
		Logger:      setup.log,
		HistoryPath: historyPath,
	})
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = genAccentStyle
	return generateModel{
		ctrl:        ctrl,
		sig:         sig,
		historyPath: historyPath,
		mode:        genModeLoading,
		client:      setup.client,
		spin:        sp,
	}
}

func (m generateModel) Init() tea.Cmd {
	return tea.Batch(m.loadOptionsCmd(), m.waitForEvent(), m.spin.Tick)
}

func (m generateModel) loadOptionsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		opts, err := client.Options(context.Background())
		return genOptionsMsg{opts: opts, err: err}
	}
}

func (m generateModel) waitForEvent() tea.Cmd {
	sig := m.sig
	return func() tea.Msg {
		<-sig
		return stateRefreshMsg{}
	}
}

func (m generateModel) startFlowCmd(req flow.Request) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return flowDoneMsg{phase: ctrl.Run(context.Background(), req)}
	}
}

func (m generateModel) confirmCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return confirmDoneMsg{err: ctrl.ConfirmSelection(context.Background())}
	}
}

func (m generateModel) retryCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return flowDoneMsg{phase: ctrl.Retry(context.Background())}
	}
}

func (m generateModel) regenerateCmd(assetID int64) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return regenStartedMsg{err: ctrl.RegenerateAsset(context.Background(), assetID)}
	}
}

func (m generateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.form != nil {
			m.form.Input.Width = clampInt(m.width-8, 20, 120)
		}
		return m, nil
	case genOptionsMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, tea.Quit
		}
		m.opts = msg.opts
		if m.opts.Fallback {
			m.statusMessage = "backend unreachable; using built-in defaults"
		}
		m.mode = genModeEra
		return m, nil
	case stateRefreshMsg:
		m = m.syncFromController()
		return m, m.waitForEvent()
	case flowDoneMsg:
		m = m.syncFromController()
		return m, nil
	case confirmDoneMsg:
		if msg.err != nil {
			m.statusMessage = confirmErrorMessage(msg.err)
			return m, nil
		}
		m = m.syncFromController()
		return m, nil
	case regenStartedMsg:
		if msg.err != nil {
			m.statusMessage = confirmErrorMessage(msg.err)
		}
		m = m.syncFromController()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if keyMsg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case genModeEra:
		return m.updateEra(keyMsg)
	case genModeConfig:
		return m.updateConfig(keyMsg)
	case genModeReview:
		return m.updateReview(keyMsg)
	case genModeDone:
		return m.updateDone(keyMsg)
	case genModeError:
		return m.updateError(keyMsg)
	default:
		return m, nil
	}
}

// syncFromController mirrors the flow state into the model. The creating
// phase keeps whatever screen the user is on; every later phase owns one.
func (m generateModel) syncFromController() generateModel {
	st := m.ctrl.State()
	m.phase = st.Phase
	m.progress = st.Progress
	m.message = st.Message
	m.assets = st.Assets
	m.selected = st.Selected
	m.regenerating = st.Regenerating
	m.videoURL = st.VideoURL
	m.errMsg = st.ErrMsg

	switch st.Phase {
	case model.PhaseGeneratingImages, model.PhaseGeneratingVideo:
		m.mode = genModeWorking
	case model.PhaseReviewingImages:
		if m.mode != genModeReview {
			m.reviewCursor = 0
		}
		m.mode = genModeReview
	case model.PhaseCompleted:
		m.mode = genModeDone
	case model.PhaseError:
		m.mode = genModeError
	}
	if m.reviewCursor >= len(m.assets) {
		m.reviewCursor = maxInt(len(m.assets)-1, 0)
	}
	return m
}

func (m generateModel) updateEra(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.eraCursor > 0 {
			m.eraCursor--
		}
	case "down", "j":
		if m.eraCursor < len(m.opts.EraPresets)-1 {
			m.eraCursor++
		}
	case "enter":
		if len(m.opts.EraPresets) == 0 {
			m.statusMessage = "no era presets available"
			return m, nil
		}
		m.form = newGenerateForm(m.opts, m.width)
		m.statusMessage = ""
		m.mode = genModeConfig
	}
	return m, nil
}

func (m generateModel) updateConfig(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = genModeEra
		return m, nil
	}
	switch msg.String() {
	case "esc":
		m.form = nil
		m.mode = genModeEra
		return m, nil
	case "up", "shift+tab":
		m.form.commitInput()
		if m.form.Index > 0 {
			m.form.Index--
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "down", "tab":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "left", "right":
		if m.form.currentField().Kind == genFieldSelect {
			dir := 1
			if msg.String() == "left" {
				dir = -1
			}
			m.form.cycleSelect(dir)
			return m, nil
		}
	case "enter", "ctrl+s":
		m.form.commitInput()
		if msg.String() == "enter" && m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
			m.form.loadFieldIntoInput()
			return m, nil
		}
		req, err := m.form.buildRequest(m.opts, m.selectedEra())
		if err != nil {
			m.form.Error = err.Error()
			return m, nil
		}
		m.flowStarted = true
		m.mode = genModeWorking
		m.message = "Creating your project..."
		m.progress = 0
		return m, m.startFlowCmd(req)
	}
	if m.form.currentField().Kind == genFieldString {
		var cmd tea.Cmd
		m.form.Input, cmd = m.form.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m generateModel) updateReview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.reviewCursor > 0 {
			m.reviewCursor--
		}
	case "down", "j":
		if m.reviewCursor < len(m.assets)-1 {
			m.reviewCursor++
		}
	case " ", "space":
		if m.reviewCursor < len(m.assets) {
			m.ctrl.ToggleAsset(m.assets[m.reviewCursor].ID)
			m = m.syncFromController()
		}
	case "a":
		m.ctrl.SelectAll()
		m = m.syncFromController()
	case "n":
		m.ctrl.DeselectAll()
		m = m.syncFromController()
	case "r":
		if m.reviewCursor < len(m.assets) {
			m.statusMessage = ""
			return m, m.regenerateCmd(m.assets[m.reviewCursor].ID)
		}
	case "enter":
		m.statusMessage = ""
		m.mode = genModeWorking
		m.message = "Creating your cinematic video..."
		m.progress = 0
		return m, m.confirmCmd()
	}
	return m, nil
}

func (m generateModel) updateDone(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "enter", "esc":
		return m, tea.Quit
	case "s":
		m.ctrl.StartOver()
		m = m.syncFromController()
		m.mode = genModeEra
		m.eraCursor = 0
		m.form = nil
		m.statusMessage = ""
	}
	return m, nil
}

func (m generateModel) updateError(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "r":
		m.mode = genModeWorking
		m.statusMessage = ""
		return m, m.retryCmd()
	case "s":
		m.ctrl.StartOver()
		m = m.syncFromController()
		m.mode = genModeEra
		m.form = nil
		m.statusMessage = ""
	}
	return m, nil
}

func (m generateModel) selectedEra() model.EraPreset {
	if m.eraCursor >= 0 && m.eraCursor < len(m.opts.EraPresets) {
		return m.opts.EraPresets[m.eraCursor]
	}
	return model.EraPreset{}
}

func (m generateModel) View() string {
	var body string
	switch m.mode {
	case genModeLoading:
		body = genMutedStyle.Render("Loading options...")
	case genModeEra:
		body = m.viewEra()
	case genModeConfig:
		body = m.viewConfig()
	case genModeWorking:
		body = m.viewWorking()
	case genModeReview:
		body = m.viewReview()
	case genModeDone:
		body = m.viewDone()
	case genModeError:
		body = m.viewError()
	}
	header := genTitleStyle.Render("chronoreel")
	status := ""
	if strings.TrimSpace(m.statusMessage) != "" {
		status = "\n" + genMutedStyle.Render(m.statusMessage)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body) + status
}

func (m generateModel) viewEra() string {
	lines := []string{genAccentStyle.Render("Choose your era"), ""}
	for i, p := range m.opts.EraPresets {
		line := fmt.Sprintf("  %s - %s", p.DisplayName, p.Description)
		if i == m.eraCursor {
			line = genSelStyle.Render("> " + p.DisplayName + " - " + p.Description)
		}
		lines = append(lines, truncateRunes(line, maxInt(m.width-4, 20)))
	}
	lines = append(lines, "", genMutedStyle.Render("up/down: move | enter: continue | q: quit"))
	return strings.Join(lines, "\n")
}

func (m generateModel) viewConfig() string {
	if m.form == nil {
		return ""
	}
	era := m.selectedEra()
	lines := []string{genAccentStyle.Render("Configure: " + era.DisplayName), ""}
	for i, f := range m.form.Fields {
		prefix := "  "
		if i == m.form.Index {
			prefix = "> "
		}
		display := strings.TrimSpace(f.Value)
		if display == "" {
			display = genMutedStyle.Render("(empty)")
		}
		if f.Kind == genFieldSelect {
			display = "[" + display + "]"
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", prefix, f.Label, display))
	}

	curr := m.form.currentField()
	lines = append(lines, "", curr.Label)
	if strings.TrimSpace(curr.Help) != "" {
		lines = append(lines, genMutedStyle.Render(curr.Help))
	}
	if curr.Kind == genFieldString {
		lines = append(lines, m.form.Input.View())
	} else {
		lines = append(lines, genMutedStyle.Render("left/right to change"))
	}
	if strings.TrimSpace(m.form.Error) != "" {
		lines = append(lines, "", genErrorStyle.Render(m.form.Error))
	}
	lines = append(lines, "", genMutedStyle.Render("tab/up/down: move | enter: next/start | ctrl+s: start | esc: back"))
	return genPanelStyle.Width(maxInt(m.width-2, 40)).Render(strings.Join(lines, "\n"))
}

func (m generateModel) viewWorking() string {
	label := "Working..."
	switch m.phase {
	case model.PhaseCreating:
		label = "Creating project"
	case model.PhaseGeneratingImages:
		label = "Generating images"
	case model.PhaseGeneratingVideo:
		label = "Generating video"
	}
	bar := renderProgressBar(m.progress, clampInt(m.width-20, 10, 50))
	lines := []string{
		m.spin.View() + genAccentStyle.Render(label),
		"",
		fmt.Sprintf("%s %3d%%", bar, clampInt(m.progress, 0, 100)),
		genMutedStyle.Render(m.message),
	}
	if m.phase == model.PhaseGeneratingImages && len(m.assets) > 0 {
		lines = append(lines, "", fmt.Sprintf("images ready: %d", len(m.assets)))
	}
	return strings.Join(lines, "\n")
}

func (m generateModel) viewReview() string {
	selectedCount := 0
	for _, ok := range m.selected {
		if ok {
			selectedCount++
		}
	}
	lines := []string{
		genAccentStyle.Render(fmt.Sprintf("Review images (%d/%d selected)", selectedCount, len(m.assets))),
		"",
	}
	for i, a := range m.assets {
		mark := "[ ]"
		if m.selected[a.ID] {
			mark = "[x]"
		}
		if m.regenerating[a.ID] {
			mark = "[~]"
		}
		line := fmt.Sprintf("%s #%d seq %d  %s", mark, a.ID, a.SequenceOrder, a.FileURL)
		if m.regenerating[a.ID] {
			line += "  regenerating..."
		}
		line = truncateRunes(line, maxInt(m.width-6, 30))
		if i == m.reviewCursor {
			line = genSelStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	lines = append(lines, "",
		genMutedStyle.Render("space: toggle | a: all | n: none | r: regenerate | enter: create video | q: quit"))
	return strings.Join(lines, "\n")
}

func (m generateModel) viewDone() string {
	lines := []string{genOKStyle.Render("Video completed"), ""}
	if m.videoURL != "" {
		lines = append(lines, "watch: "+m.videoURL)
	} else {
		lines = append(lines, genMutedStyle.Render("Final video is processing; the URL will appear here shortly."))
	}
	lines = append(lines, "", genMutedStyle.Render("s: start over | q: quit"))
	return strings.Join(lines, "\n")
}

func (m generateModel) viewError() string {
	msg := defaultIfEmpty(m.errMsg, "Something went wrong.")
	lines := []string{
		genErrorStyle.Render(msg),
		"",
		genMutedStyle.Render("r: retry | s: start over | q: quit"),
	}
	return strings.Join(lines, "\n")
}

func renderProgressBar(pct, width int) string {
	pct = clampInt(pct, 0, 100)
	filled := pct * width / 100
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

func confirmErrorMessage(err error) string {
	switch {
	case errors.Is(err, flow.ErrEmptySelection):
		return "select at least one image first"
	case errors.Is(err, flow.ErrNoUsableAssets):
		return "none of the selected images is ready for video creation"
	case errors.Is(err, flow.ErrRegenerationActive):
		return "wait for the running regeneration to finish"
	case errors.Is(err, flow.ErrAlreadyRegenerating):
		return "that image is already being regenerated"
	case errors.Is(err, flow.ErrUnknownAsset):
		return "that image is no longer available"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}

func newGenerateForm(opts model.AvailableOptions, width int) *generateForm {
	durations := make([]string, 0, len(opts.DurationOptions))
	for _, d := range opts.DurationOptions {
		durations = append(durations, strconv.Itoa(d))
	}
	if len(durations) == 0 {
		durations = []string{"10"}
	}
	ratios := opts.AvailableRatios
	if len(ratios) == 0 {
		ratios = []string{"720:1280"}
	}
	music := []string{"none"}
	for _, t := range opts.MusicTracks {
		music = append(music, fmt.Sprintf("%d: %s", t.ID, t.Title))
	}

	f := &generateForm{
		Fields: []genField{
			{Key: "title", Label: "Title", Help: "Optional project title", Kind: genFieldString},
			{Key: "duration", Label: "Duration (s)", Help: "Length of the final video", Kind: genFieldSelect, Value: durations[0], Options: durations},
			{Key: "ratio", Label: "Ratio", Help: "Aspect ratio of the final video", Kind: genFieldSelect, Value: ratios[0], Options: ratios},
			{Key: "music", Label: "Music", Help: "Soundtrack for the final video", Kind: genFieldSelect, Value: "none", Options: music},
			{Key: "overlay", Label: "Overlay Text", Help: "Optional text shown over the video", Kind: genFieldString},
		},
	}
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 256
	input.Width = clampInt(width-8, 20, 120)
	f.Input = input
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

func (f *generateForm) currentField() genField {
	if len(f.Fields) == 0 {
		return genField{}
	}
	f.Index = clampInt(f.Index, 0, len(f.Fields)-1)
	return f.Fields[f.Index]
}

func (f *generateForm) commitInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	if f.Fields[f.Index].Kind == genFieldString {
		f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
	}
}

func (f *generateForm) loadFieldIntoInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Input.SetValue(f.Fields[f.Index].Value)
	f.Input.CursorEnd()
}

func (f *generateForm) cycleSelect(dir int) {
	curr := f.currentField()
	if curr.Kind != genFieldSelect || len(curr.Options) == 0 {
		return
	}
	idx := 0
	for i, opt := range curr.Options {
		if opt == curr.Value {
			idx = i
			break
		}
	}
	idx = (idx + dir + len(curr.Options)) % len(curr.Options)
	f.Fields[f.Index].Value = curr.Options[idx]
}

func (f *generateForm) buildRequest(opts model.AvailableOptions, era model.EraPreset) (flow.Request, error) {
	if strings.TrimSpace(era.PresetName) == "" {
		return flow.Request{}, errors.New("no era selected")
	}
	req := flow.Request{EraPreset: era.PresetName}
	for _, field := range f.Fields {
		value := strings.TrimSpace(field.Value)
		switch field.Key {
		case "title":
			req.Title = value
		case "duration":
			d, err := strconv.Atoi(value)
			if err != nil || d <= 0 {
				return flow.Request{}, fmt.Errorf("invalid duration %q", value)
			}
			req.Duration = d
		case "ratio":
			if value == "" {
				return flow.Request{}, errors.New("ratio is required")
			}
			req.Ratio = value
		case "music":
			if value == "" || value == "none" {
				continue
			}
			idPart, _, found := strings.Cut(value, ":")
			if !found {
				return flow.Request{}, fmt.Errorf("invalid music choice %q", value)
			}
			id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
			if err != nil {
				return flow.Request{}, fmt.Errorf("invalid music choice %q", value)
			}
			req.MusicID = &id
		case "overlay":
			req.OverlayText = value
		}
	}
	return req, nil
}
