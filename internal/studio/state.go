package studio

import (
	"time"

	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/synth"
)

// State is the view-model of one studio session.
type State struct {
	ID                    string            `json:"id"`
	UploadedAsset         string            `json:"uploaded_asset,omitempty"`
	Prompt                string            `json:"prompt"`
	Descriptors           descriptor.Values `json:"descriptors"`
	GeneratedImages       []string          `json:"generated_images"`
	LastSynthesizedPrompt *string           `json:"last_synthesized_prompt"`
	Loading               bool              `json:"is_loading"`
	Enhancing             bool              `json:"is_enhancing"`
	Analyzing             bool              `json:"is_analyzing"`
	Error                 string            `json:"error,omitempty"`
	AspectRatio           string            `json:"aspect_ratio"`
	UpdatedAt             time.Time         `json:"updated_at"`

	// Version grows by one with every committed update.
	Version uint64 `json:"version"`

	// Start times of the in-flight calls. A flag whose call started longer
	// ago than the studio's lease is treated as abandoned.
	LoadingSince   time.Time `json:"loading_since,omitzero"`
	EnhancingSince time.Time `json:"enhancing_since,omitzero"`
	AnalyzingSince time.Time `json:"analyzing_since,omitzero"`
}

func (s State) HasAsset() bool {
	return s.UploadedAsset != ""
}

func (s State) Busy() bool {
	return s.Loading || s.Enhancing || s.Analyzing
}

// Clone deep-copies the reference fields so callers can hold snapshots.
func (s State) Clone() State {
	s.Descriptors = s.Descriptors.Clone()
	s.GeneratedImages = append([]string{}, s.GeneratedImages...)
	if s.LastSynthesizedPrompt != nil {
		p := *s.LastSynthesizedPrompt
		s.LastSynthesizedPrompt = &p
	}
	return s
}

func defaultState(id string, c *descriptor.Catalog) State {
	return State{
		ID:              id,
		Descriptors:     c.Defaults(),
		GeneratedImages: []string{},
		AspectRatio:     synth.DefaultAspectRatio,
		UpdatedAt:       time.Now(),
	}
}
