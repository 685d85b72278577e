package flow

import "chronoreel/internal/model"

// videoResolutionKind tags the outcome of inspecting a terminal create-video
// task: the URL is present directly, a chained task must be polled, or the
// task carries neither and the project itself is the only remaining source.
type videoResolutionKind int

const (
	resolvedDirect videoResolutionKind = iota
	resolvedChained
	resolvedUnknown
)

type videoResolution struct {
	kind   videoResolutionKind
	url    string
	taskID string
}

// resolveVideoResult classifies a terminal task's result payload. Precedence
// is the direct URL first, then the chained task id.
func resolveVideoResult(t model.Task) videoResolution {
	if t.Result == nil {
		return videoResolution{kind: resolvedUnknown}
	}
	if t.Result.FinalVideoURL != "" {
		return videoResolution{kind: resolvedDirect, url: t.Result.FinalVideoURL}
	}
	if t.Result.FinalTaskID != "" {
		return videoResolution{kind: resolvedChained, taskID: t.Result.FinalTaskID}
	}
	return videoResolution{kind: resolvedUnknown}
}
