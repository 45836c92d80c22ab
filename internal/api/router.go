package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"asset-synth-studio/internal/studio"
)

type Options struct {
	Studio         *studio.Studio
	Logger         *slog.Logger
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	MaxUploadBytes int64
	// Static serves everything outside /api, typically the embedded page.
	Static http.Handler
	// Heartbeat is the interval of SSE keep-alive comments.
	Heartbeat time.Duration
}

type Server struct {
	studio         *studio.Studio
	logger         *slog.Logger
	maxUploadBytes int64
	heartbeat      time.Duration
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	window := opts.RateWindow
	if window <= 0 {
		window = time.Minute
	}

	s := &Server{
		studio:         opts.Studio,
		logger:         logger,
		maxUploadBytes: maxUpload,
		heartbeat:      heartbeat,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(logger), middleware.Recoverer)
	r.Use(cors(opts.AllowedOrigins))

	limited := rateLimit(opts.RateLimit, window)

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/descriptors", s.listDescriptors)
			r.Get("/templates", s.listTemplates)
			r.Get("/aspect-ratios", s.listAspectRatios)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(limited).Post("/", s.createSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Get("/events", s.events)

				r.Post("/reset", s.reset)
				r.Put("/prompt", s.setPrompt)
				r.Put("/descriptors/{descriptorID}", s.changeDescriptor)
				r.Put("/aspect-ratio", s.setAspectRatio)
				r.Post("/upload-error", s.setUploadError)
				r.Post("/template", s.selectTemplate)
				r.Delete("/asset", s.clearAsset)

				// Calls that reach the generative service are rate limited.
				r.Group(func(r chi.Router) {
					r.Use(limited)
					r.Put("/asset", s.uploadAsset)
					r.Post("/enhance", s.enhance)
					r.Post("/synthesize", s.synthesize)
				})
			})
		})
	})

	if opts.Static != nil {
		r.Handle("/*", opts.Static)
	}

	return r
}
