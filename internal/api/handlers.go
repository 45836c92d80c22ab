package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/studio"
	"asset-synth-studio/internal/synth"
)

type apiError struct {
	Error string `json:"error"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type descriptorRequest struct {
	Value *float64 `json:"value"`
}

type aspectRatioRequest struct {
	AspectRatio string `json:"aspect_ratio"`
}

type uploadErrorRequest struct {
	Error string `json:"error"`
}

type templateRequest struct {
	TemplateID string `json:"template_id"`
}

type assetRequest struct {
	DataURL string `json:"data_url"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDescriptors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]descriptor.Descriptor{
		"descriptors": s.studio.Catalog().Descriptors(),
	})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]descriptor.Template{
		"templates": s.studio.Catalog().Templates(),
	})
}

func (s *Server) listAspectRatios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"aspect_ratios": synth.SupportedAspectRatios(),
		"default":       synth.DefaultAspectRatio,
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.Create(r.Context())
	if err != nil {
		s.writeStudioError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.Get(r.Context(), sessionID(r))
	s.respond(w, r, st, err)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.Delete(r.Context(), sessionID(r)); err != nil {
		s.writeStudioError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.Reset(r.Context(), sessionID(r))
	s.respond(w, r, st, err)
}

func (s *Server) setPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.studio.SetPrompt(r.Context(), sessionID(r), req.Prompt)
	s.respond(w, r, st, err)
}

func (s *Server) changeDescriptor(w http.ResponseWriter, r *http.Request) {
	var req descriptorRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	st, err := s.studio.ChangeDescriptor(r.Context(), sessionID(r), chi.URLParam(r, "descriptorID"), *req.Value)
	s.respond(w, r, st, err)
}

func (s *Server) setAspectRatio(w http.ResponseWriter, r *http.Request) {
	var req aspectRatioRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.studio.SetAspectRatio(r.Context(), sessionID(r), req.AspectRatio)
	s.respond(w, r, st, err)
}

func (s *Server) setUploadError(w http.ResponseWriter, r *http.Request) {
	var req uploadErrorRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.studio.SetError(r.Context(), sessionID(r), req.Error)
	s.respond(w, r, st, err)
}

func (s *Server) selectTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.studio.SelectTemplate(r.Context(), sessionID(r), req.TemplateID)
	s.respond(w, r, st, err)
}

func (s *Server) clearAsset(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.UploadAsset(r.Context(), sessionID(r), nil)
	s.respond(w, r, st, err)
}

// uploadAsset accepts either a multipart form with an "image" file or a JSON
// body carrying a data URL.
func (s *Server) uploadAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	a, err := s.readAsset(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	st, err := s.studio.UploadAsset(r.Context(), sessionID(r), &a)
	s.respond(w, r, st, err)
}

func (s *Server) readAsset(r *http.Request) (asset.Asset, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			return asset.Asset{}, err
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return asset.Asset{}, errors.New("missing image")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return asset.Asset{}, err
		}
		return asset.New(header.Header.Get("Content-Type"), data)
	}

	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return asset.Asset{}, err
		}
		return asset.Asset{}, errors.New("invalid json body")
	}
	return asset.ParseDataURL(req.DataURL)
}

func (s *Server) enhance(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.EnhancePrompt(r.Context(), sessionID(r))
	s.respond(w, r, st, err)
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	st, err := s.studio.Synthesize(r.Context(), sessionID(r))
	s.respond(w, r, st, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, st studio.State, err error) {
	if err != nil {
		s.writeStudioError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (s *Server) writeStudioError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, studio.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, studio.ErrBusy), errors.Is(err, studio.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, studio.ErrUnknownDescriptor),
		errors.Is(err, studio.ErrUnknownTemplate),
		errors.Is(err, studio.ErrUnsupportedAspectRatio),
		errors.Is(err, studio.ErrInvalidAsset):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("studio operation failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
