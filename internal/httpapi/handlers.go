package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/internal/lang"
	"github.com/speakswap/speakswap/pkg/audio"
)

// errorResponse is the JSON payload for every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// uploadResponse answers POST /upload-audio.
type uploadResponse struct {
	ConversationCode string `json:"conversation_code"`
	Status           string `json:"status"`
	SourceLanguage   string `json:"source_language"`
	TargetLanguage   string `json:"target_language,omitempty"`
}

// conversationResponse answers GET /conversation/{code}.
type conversationResponse struct {
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	TranscribedText string `json:"transcribed_text,omitempty"`
	TranslatedText  string `json:"translated_text,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	SourceLanguage  string `json:"source_language"`
	AudioFile       string `json:"audio_file,omitempty"`
}

// generateAudioRequest is the body of POST /generate-audio.
type generateAudioRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

// generateAudioResponse answers POST /generate-audio.
type generateAudioResponse struct {
	AudioID  string `json:"audio_id"`
	AudioURL string `json:"audio_url"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "speakswap",
		"status":  "ok",
	})
}

func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("missing file field"))
		return
	}
	defer file.Close()

	source := r.FormValue("source_language")
	if source == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing source_language field"))
		return
	}
	if err := lang.Validate(source); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	target := r.FormValue("target_language")
	if target != "" {
		if err := lang.Validate(target); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	pcm, format, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode audio: %w", err))
		return
	}

	var targets []string
	if target != "" {
		targets = []string{target}
	}
	code, err := s.store.Submit(r.Context(), pcm, format, source, targets)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	slog.Info("httpapi: audio uploaded",
		"code", code, "source", source, "target", target, "bytes", len(data))
	writeJSON(w, http.StatusOK, uploadResponse{
		ConversationCode: code,
		Status:           string(conversation.StatusUploaded),
		SourceLanguage:   source,
		TargetLanguage:   target,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	target := r.URL.Query().Get("target_language")

	rec, err := s.store.EnsureTranslation(r.Context(), code, target)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, lang.ErrUnsupported):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	resp := conversationResponse{
		Status:          string(rec.Status),
		CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339),
		TranscribedText: rec.TranscribedText,
		ErrorMessage:    rec.ErrorMessage,
		SourceLanguage:  rec.SourceLanguage,
	}
	if target == "" {
		target = rec.TargetLanguage
	}
	if target != "" {
		resp.TranslatedText = rec.Translations[target]
		if id, ok := rec.AudioFiles[target]; ok {
			resp.AudioFile = "/audio-file/" + id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req generateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text must not be empty"))
		return
	}
	if err := lang.Validate(req.TargetLanguage); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.store.GenerateAudio(r.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, generateAudioResponse{
		AudioID:  id,
		AudioURL: "/audio-file/" + id,
		Text:     req.Text,
		Language: req.TargetLanguage,
	})
}

// handleOriginalAudio serves the audio a conversation was created from.
func (s *Server) handleOriginalAudio(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	rec, err := s.store.Get(code)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if rec.OriginalAudio == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("no original audio for %q", code))
		return
	}
	s.serveArtifact(w, r, rec.OriginalAudio)
}

func (s *Server) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, r.PathValue("id"))
}

// handleTranslatedAudio serves the synthesized translation for a
// conversation, producing it on the spot when only the text exists.
func (s *Server) handleTranslatedAudio(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	target := r.URL.Query().Get("target_language")
	if target == "" {
		target = "en"
	}

	id, err := s.store.EnsureTranslatedAudio(r.Context(), code, target)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNotFound),
			errors.Is(err, conversation.ErrAudioNotAvailable):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, lang.ErrUnsupported):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.serveArtifact(w, r, id)
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, id string) {
	path, err := s.store.Files().Path(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown audio %q", id))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) handleSupportedLanguages(w http.ResponseWriter, _ *http.Request) {
	codes := lang.Codes()
	languages := make([]map[string]string, 0, len(codes))
	for _, code := range codes {
		languages = append(languages, map[string]string{
			"code":   code,
			"locale": lang.Locale(code),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"languages": languages})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
