package flow

import "chronoreel/internal/model"

// reconcileCompletion folds a fresh project snapshot into the local phase and
// cached video URL. It is the single authority for the completion override:
// an authoritative final video URL forces the completed phase from any
// non-terminal phase, and a URL, once cached, is never erased by a snapshot
// that lacks one.
func reconcileCompletion(phase model.Phase, cachedURL string, snapshot model.Project) (model.Phase, string) {
	url := cachedURL
	if url == "" {
		url = snapshot.FinalVideoURL
	}
	if snapshot.FinalVideoURL != "" && !model.PhaseTerminal(phase) {
		phase = model.PhaseCompleted
	}
	return phase, url
}
