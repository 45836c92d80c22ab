package studio

import "errors"

var (
	ErrNotFound               = errors.New("session not found")
	ErrExists                 = errors.New("session already exists")
	ErrBusy                   = errors.New("operation already in progress")
	ErrUnknownDescriptor      = errors.New("unknown descriptor")
	ErrUnknownTemplate        = errors.New("unknown template")
	ErrUnsupportedAspectRatio = errors.New("unsupported aspect ratio")
	ErrInvalidAsset           = errors.New("invalid asset")
)

// Fallback messages shown when a service error carries no text.
const (
	msgAnalyzeFailed   = "Failed to analyze asset."
	msgEnhanceFailed   = "Failed to enhance prompt."
	msgSynthesisFailed = "An unknown error occurred during synthesis."
	msgServiceTimedOut = "The generative service did not answer in time."
)
