// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/speakswap/speakswap/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all concurrent Transcribe calls; each call runs
// on its own whisper context.
type NativeProvider struct {
	mu    sync.Mutex
	model whisperlib.Model
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{model: model}, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		err := p.model.Close()
		p.model = nil
		return err
	}
	return nil
}

// Transcribe converts the utterance to float32 mono samples and runs
// whisper.cpp inference on a fresh context. Contexts are not thread-safe but
// the model is, so concurrent calls are fine.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(req.PCM) == 0 {
		return stt.Result{}, nil
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return stt.Result{}, errors.New("whisper: provider is closed")
	}

	samples := pcmToFloat32Mono(req.PCM, max(req.Channels, 1))

	wctx, err := model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if req.Language != "" {
		code, _, _ := strings.Cut(req.Language, "-")
		if err := wctx.SetLanguage(code); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", code, "error", err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Result{Text: strings.Join(parts, " ")}, nil
}
