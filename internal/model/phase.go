package model

import "fmt"

// Phase is the client-local generation state. It exists only to drive the UI
// and gating logic; the backend never sees it.
type Phase string

const (
	PhaseCreating         Phase = "creating"
	PhaseGeneratingImages Phase = "generating-images"
	PhaseReviewingImages  Phase = "reviewing-images"
	PhaseGeneratingVideo  Phase = "generating-video"
	PhaseCompleted        Phase = "completed"
	PhaseError            Phase = "error"
)

var allowedPhaseTransitions = map[Phase]map[Phase]bool{
	PhaseCreating: {
		PhaseCreating:         true,
		PhaseGeneratingImages: true,
		PhaseCompleted:        true, // final video URL override
		PhaseError:            true,
	},
	PhaseGeneratingImages: {
		PhaseGeneratingImages: true,
		PhaseReviewingImages:  true,
		PhaseCompleted:        true, // final video URL override
		PhaseError:            true,
	},
	PhaseReviewingImages: {
		PhaseReviewingImages: true,
		PhaseGeneratingVideo: true,
		PhaseCompleted:       true, // final video URL override
		PhaseError:           true,
	},
	PhaseGeneratingVideo: {
		PhaseGeneratingVideo: true,
		PhaseCompleted:       true,
		PhaseError:           true,
	},
	PhaseCompleted: {
		PhaseCompleted: true,
		PhaseCreating:  true, // start over
	},
	PhaseError: {
		PhaseError:    true,
		PhaseCreating: true, // retry or start over
	},
}

// PhaseTerminal reports whether the phase ends the current attempt.
// Both terminal phases still allow restarting from the top.
func PhaseTerminal(p Phase) bool {
	return p == PhaseCompleted || p == PhaseError
}

func IsKnownPhase(p Phase) bool {
	_, ok := allowedPhaseTransitions[p]
	return ok
}

func CanTransitionPhase(from, to Phase) bool {
	next, ok := allowedPhaseTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionPhase validates and applies a phase change.
func TransitionPhase(current *Phase, to Phase) error {
	if !CanTransitionPhase(*current, to) {
		return fmt.Errorf("invalid generation phase transition: %q -> %q", *current, to)
	}
	*current = to
	return nil
}
