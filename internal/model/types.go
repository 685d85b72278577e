package model

// Project is one video being produced, as reported by the backend.
type Project struct {
	ID            int64       `json:"id"`
	Title         string      `json:"title,omitempty"`
	EraPreset     string      `json:"era_preset"`
	Duration      int         `json:"duration"`
	Ratio         string      `json:"ratio"`
	NumImages     int         `json:"num_images"`
	Status        string      `json:"status"`
	CreatedAt     string      `json:"created_at"`
	CompletedAt   string      `json:"completed_at,omitempty"`
	OverlayText   string      `json:"overlay_text,omitempty"`
	FinalVideoURL string      `json:"final_video_url,omitempty"`
	Assets        []Asset     `json:"assets,omitempty"`
	SelectedMusic *MusicTrack `json:"selected_music,omitempty"`
}

// Completed reports whether the backend has produced the final artifact.
// A non-empty final video URL is authoritative regardless of the status
// string or any locally tracked phase.
func (p Project) Completed() bool {
	return p.FinalVideoURL != ""
}

// Asset is one generated artifact (image or video) tied to a project.
// A regeneration job may replace the file URL in place; id and sequence
// order stay stable.
type Asset struct {
	ID            int64  `json:"id"`
	AssetType     string `json:"asset_type"`
	Status        string `json:"status"`
	FileURL       string `json:"file_url,omitempty"`
	SequenceOrder int    `json:"sequence_order,omitempty"`
	IsSelected    bool   `json:"is_selected"`
	CreatedAt     string `json:"created_at"`
}

const AssetTypeImage = "image"

// Usable reports whether the asset is eligible for video composition.
func (a Asset) Usable() bool {
	return a.Status == TaskCompleted && a.FileURL != "" && a.ID > 0
}

// Task is a handle to an asynchronous backend job.
type Task struct {
	TaskID   string      `json:"task_id"`
	Status   string      `json:"status"`
	Message  string      `json:"message,omitempty"`
	Progress *int        `json:"progress,omitempty"`
	Result   *TaskResult `json:"result,omitempty"`
}

// TaskResult is the payload a terminal task may carry. A result naming a
// final task id chains to a second task that must be polled in turn.
type TaskResult struct {
	FinalVideoURL string  `json:"final_video_url,omitempty"`
	FinalTaskID   string  `json:"final_task_id,omitempty"`
	Asset         *Asset  `json:"asset,omitempty"`
	VideoAssets   []Asset `json:"video_assets,omitempty"`
}

// ProgressValue returns the reported progress, or -1 when the backend
// omitted it.
func (t Task) ProgressValue() int {
	if t.Progress == nil {
		return -1
	}
	return *t.Progress
}

// EraPreset is one of the themed scenarios a project can be built around.
type EraPreset struct {
	PresetName  string `json:"preset_name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// MusicTrack is a soundtrack option offered by the backend.
type MusicTrack struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Mood     string `json:"mood,omitempty"`
	Duration int    `json:"duration"`
}

// AvailableOptions is the configuration space for new projects. Fallback is
// set client-side when the static degraded-mode set was substituted because
// the backend was unreachable.
type AvailableOptions struct {
	EraPresets      []EraPreset  `json:"era_presets"`
	MusicTracks     []MusicTrack `json:"music_tracks"`
	AvailableRatios []string     `json:"available_ratios"`
	DurationOptions []int        `json:"duration_options"`

	Fallback bool `json:"-"`
}
