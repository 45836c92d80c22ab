package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/synth"
)

const (
	defaultRequestTimeout = 120 * time.Second

	// leaseGrace covers the store writes around a service call.
	leaseGrace = 30 * time.Second
)

type Options struct {
	Store          Store
	Service        Service
	Catalog        *descriptor.Catalog
	Normalizer     asset.Normalizer
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Hub            *Hub
}

// Studio owns every session's view state and wires user actions to the
// generative service. Service calls run outside the store lock; their
// outcome is written back in a second update.
type Studio struct {
	store      Store
	service    Service
	catalog    *descriptor.Catalog
	normalizer asset.Normalizer
	timeout    time.Duration
	logger     *slog.Logger
	hub        *Hub
	now        func() time.Time
}

func New(opts Options) (*Studio, error) {
	if opts.Service == nil {
		return nil, errors.New("studio: service is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(MemoryOptions{})
	}
	if opts.Catalog == nil {
		opts.Catalog = descriptor.Default()
	}
	if opts.Normalizer.MaxDimension <= 0 || opts.Normalizer.Quality <= 0 {
		opts.Normalizer = asset.NewNormalizer(opts.Normalizer.MaxDimension, opts.Normalizer.Quality)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	return &Studio{
		store:      opts.Store,
		service:    opts.Service,
		catalog:    opts.Catalog,
		normalizer: opts.Normalizer,
		timeout:    opts.RequestTimeout,
		logger:     opts.Logger,
		hub:        opts.Hub,
		now:        time.Now,
	}, nil
}

func (s *Studio) Catalog() *descriptor.Catalog {
	return s.catalog
}

func (s *Studio) Create(ctx context.Context) (State, error) {
	st := defaultState(uuid.NewString(), s.catalog)
	if err := s.store.Create(ctx, st); err != nil {
		return State{}, err
	}
	s.logger.Debug("session created", "session", st.ID)
	return st.Clone(), nil
}

// Open returns the session with the given id, creating it with defaults when
// it does not exist yet. Chat surfaces key sessions by chat id.
func (s *Studio) Open(ctx context.Context, id string) (State, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.Create(ctx)
	}
	st, err := s.store.Get(ctx, id)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return State{}, err
	}
	st = defaultState(id, s.catalog)
	if err := s.store.Create(ctx, st); err != nil {
		if errors.Is(err, ErrExists) {
			return s.store.Get(ctx, id)
		}
		return State{}, err
	}
	return st.Clone(), nil
}

func (s *Studio) Get(ctx context.Context, id string) (State, error) {
	return s.store.Get(ctx, id)
}

func (s *Studio) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Watch returns the current state and a stream of the snapshots committed
// after it, until cancel is called. Snapshots on the stream may repeat or
// precede the returned state; compare Version to skip them.
func (s *Studio) Watch(ctx context.Context, id string) (State, <-chan State, func(), error) {
	ch, cancel := s.hub.Subscribe(id)
	st, err := s.store.Get(ctx, id)
	if err != nil {
		cancel()
		return State{}, nil, nil, err
	}
	return st, ch, cancel, nil
}

// Reset restores defaults. Flags of calls still in flight survive so their
// completion is not lost; abandoned ones are dropped.
func (s *Studio) Reset(ctx context.Context, id string) (State, error) {
	return s.update(ctx, id, func(st *State) error {
		s.expireLeases(st)
		next := defaultState(id, s.catalog)
		next.Loading, next.LoadingSince = st.Loading, st.LoadingSince
		next.Enhancing, next.EnhancingSince = st.Enhancing, st.EnhancingSince
		next.Analyzing, next.AnalyzingSince = st.Analyzing, st.AnalyzingSince
		*st = next
		return nil
	})
}

func (s *Studio) SetPrompt(ctx context.Context, id, prompt string) (State, error) {
	return s.update(ctx, id, func(st *State) error {
		st.Prompt = prompt
		return nil
	})
}

func (s *Studio) ChangeDescriptor(ctx context.Context, id, descriptorID string, value float64) (State, error) {
	clamped, ok := s.catalog.Clamp(descriptorID, value)
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownDescriptor, descriptorID)
	}
	return s.update(ctx, id, func(st *State) error {
		if st.Descriptors == nil {
			st.Descriptors = s.catalog.Defaults()
		}
		st.Descriptors[descriptorID] = clamped
		return nil
	})
}

func (s *Studio) SetAspectRatio(ctx context.Context, id, ratio string) (State, error) {
	normalized := synth.NormalizeAspectRatio(ratio)
	if !synth.IsSupportedAspectRatio(normalized) {
		return State{}, fmt.Errorf("%w: %q", ErrUnsupportedAspectRatio, ratio)
	}
	return s.update(ctx, id, func(st *State) error {
		st.AspectRatio = normalized
		return nil
	})
}

// SetError stores a message produced by client-side upload validation.
func (s *Studio) SetError(ctx context.Context, id, message string) (State, error) {
	return s.update(ctx, id, func(st *State) error {
		st.Error = strings.TrimSpace(message)
		return nil
	})
}

func (s *Studio) SelectTemplate(ctx context.Context, id, templateID string) (State, error) {
	tpl, ok := s.catalog.Template(templateID)
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateID)
	}
	return s.update(ctx, id, func(st *State) error {
		st.Prompt = tpl.Prompt
		st.Descriptors = s.catalog.Normalize(tpl.Descriptors)
		st.UploadedAsset = ""
		st.Error = ""
		st.GeneratedImages = []string{}
		return nil
	})
}

// UploadAsset replaces the session's reference asset. A nil asset clears it
// and restores default descriptors; otherwise descriptors are extracted from
// the asset by the service.
func (s *Studio) UploadAsset(ctx context.Context, id string, a *asset.Asset) (State, error) {
	if a == nil {
		return s.update(ctx, id, func(st *State) error {
			st.UploadedAsset = ""
			st.Error = ""
			st.Descriptors = s.catalog.Defaults()
			return nil
		})
	}

	normalized, err := s.normalizer.Normalize(*a)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	dataURL := normalized.DataURL()
	started := s.now().Round(0)

	st, err := s.update(ctx, id, func(st *State) error {
		s.expireLeases(st)
		if st.Analyzing {
			return ErrBusy
		}
		st.UploadedAsset = dataURL
		st.Error = ""
		st.Analyzing = true
		st.AnalyzingSince = started
		return nil
	})
	if err != nil {
		return st, err
	}

	callCtx, cancel := s.callContext(ctx)
	values, callErr := s.service.ExtractDescriptors(callCtx, normalized)
	cancel()
	if callErr != nil {
		s.logger.Warn("descriptor extraction failed", "session", id, "error", callErr)
	}

	return s.finish(ctx, id, func(st *State) error {
		if !st.Analyzing || !st.AnalyzingSince.Equal(started) {
			// lease expired and another extraction took over
			return errNoop
		}
		st.Analyzing = false
		st.AnalyzingSince = time.Time{}
		if st.UploadedAsset != dataURL {
			// replaced or cleared while the call was running
			return nil
		}
		if callErr != nil {
			st.Error = messageOf(callErr, msgAnalyzeFailed)
			return nil
		}
		st.Descriptors = s.catalog.Normalize(values)
		return nil
	})
}

func (s *Studio) EnhancePrompt(ctx context.Context, id string) (State, error) {
	var prompt string
	started := s.now().Round(0)
	st, err := s.update(ctx, id, func(st *State) error {
		if st.Prompt == "" {
			return errNoop
		}
		s.expireLeases(st)
		if st.Enhancing {
			return ErrBusy
		}
		prompt = st.Prompt
		st.Enhancing = true
		st.EnhancingSince = started
		st.Error = ""
		return nil
	})
	if errors.Is(err, errNoop) {
		return st, nil
	}
	if err != nil {
		return st, err
	}

	callCtx, cancel := s.callContext(ctx)
	enhanced, callErr := s.service.EnhancePrompt(callCtx, prompt)
	cancel()
	if callErr != nil {
		s.logger.Warn("prompt enhancement failed", "session", id, "error", callErr)
	}

	return s.finish(ctx, id, func(st *State) error {
		if !st.Enhancing || !st.EnhancingSince.Equal(started) {
			return errNoop
		}
		st.Enhancing = false
		st.EnhancingSince = time.Time{}
		if callErr != nil {
			st.Error = messageOf(callErr, msgEnhanceFailed)
			return nil
		}
		st.Prompt = enhanced
		return nil
	})
}

// Synthesize runs analyze (when an asset is present), prompt composition and
// image generation against a snapshot of the session taken when it starts.
func (s *Studio) Synthesize(ctx context.Context, id string) (State, error) {
	var snapshot State
	started := s.now().Round(0)
	st, err := s.update(ctx, id, func(st *State) error {
		s.expireLeases(st)
		if st.Loading {
			return ErrBusy
		}
		st.Loading = true
		st.LoadingSince = started
		st.GeneratedImages = []string{}
		st.Error = ""
		st.LastSynthesizedPrompt = nil
		snapshot = st.Clone()
		return nil
	})
	if err != nil {
		return st, err
	}

	images, callErr := s.runSynthesis(ctx, snapshot)
	if callErr != nil {
		s.logger.Warn("synthesis failed", "session", id, "error", callErr, "duration", time.Since(started))
	} else {
		s.logger.Info("synthesis finished", "session", id, "images", len(images), "duration", time.Since(started))
	}

	return s.finish(ctx, id, func(st *State) error {
		if !st.Loading || !st.LoadingSince.Equal(started) {
			return errNoop
		}
		st.Loading = false
		st.LoadingSince = time.Time{}
		if callErr != nil {
			st.Error = messageOf(callErr, msgSynthesisFailed)
			st.GeneratedImages = []string{}
			return nil
		}
		st.GeneratedImages = images
		return nil
	})
}

func (s *Studio) runSynthesis(ctx context.Context, snapshot State) ([]string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	description := ""
	if snapshot.HasAsset() {
		a, err := asset.ParseDataURL(snapshot.UploadedAsset)
		if err != nil {
			return nil, fmt.Errorf("stored asset: %w", err)
		}
		description, err = s.service.AnalyzeAsset(callCtx, a)
		if err != nil {
			return nil, err
		}
	}

	final, err := s.service.CreateImagePrompt(callCtx, description, snapshot.Prompt, snapshot.Descriptors)
	if err != nil {
		return nil, err
	}

	if _, err := s.update(context.WithoutCancel(ctx), snapshot.ID, func(st *State) error {
		if !st.Loading || !st.LoadingSince.Equal(snapshot.LoadingSince) {
			return errNoop
		}
		p := final
		st.LastSynthesizedPrompt = &p
		return nil
	}); err != nil && !errors.Is(err, errNoop) {
		return nil, err
	}

	return s.service.GenerateSynthesis(callCtx, final, snapshot.AspectRatio)
}

// errNoop aborts an update without writing and without surfacing an error.
var errNoop = errors.New("noop")

// update commits fn and publishes the result. Every commit bumps Version so
// watchers can discard snapshots that arrive out of order.
func (s *Studio) update(ctx context.Context, id string, fn func(*State) error) (State, error) {
	st, err := s.store.Update(ctx, id, func(st *State) error {
		version := st.Version
		if err := fn(st); err != nil {
			return err
		}
		st.Version = version + 1
		return nil
	})
	if err != nil {
		return st, err
	}
	s.hub.Publish(st)
	return st, nil
}

// finish writes the outcome of a service call. A call whose lease was taken
// over leaves the session untouched.
func (s *Studio) finish(ctx context.Context, id string, fn func(*State) error) (State, error) {
	st, err := s.update(context.WithoutCancel(ctx), id, fn)
	if errors.Is(err, errNoop) {
		return st, nil
	}
	return st, err
}

func (s *Studio) lease() time.Duration {
	return s.timeout + leaseGrace
}

// expireLeases clears in-flight flags whose call started more than one lease
// ago, e.g. when the instance running it went away.
func (s *Studio) expireLeases(st *State) {
	now := s.now()
	if st.Loading && now.Sub(st.LoadingSince) > s.lease() {
		st.Loading, st.LoadingSince = false, time.Time{}
	}
	if st.Enhancing && now.Sub(st.EnhancingSince) > s.lease() {
		st.Enhancing, st.EnhancingSince = false, time.Time{}
	}
	if st.Analyzing && now.Sub(st.AnalyzingSince) > s.lease() {
		st.Analyzing, st.AnalyzingSince = false, time.Time{}
	}
}

// callContext detaches from the caller so a disconnecting client does not
// abandon a call whose result is still written to the session.
func (s *Studio) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func messageOf(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msgServiceTimedOut
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return fallback
	}
	return msg
}
