package flow

import "errors"

// Precondition violations for user-triggered operations. These are returned
// to the caller for inline display; they never move the flow to the error
// phase.
var (
	ErrEmptySelection      = errors.New("no images selected")
	ErrNoUsableAssets      = errors.New("no completed images with files in the selection")
	ErrRegenerationActive  = errors.New("an image is still being regenerated")
	ErrNoProject           = errors.New("no active project")
	ErrWrongPhase          = errors.New("operation not available in the current phase")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrAlreadyRegenerating = errors.New("asset is already being regenerated")
)
