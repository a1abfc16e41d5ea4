// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. Audio chunks stream in over the socket
// and are collected into a single PCM buffer to satisfy the batch
// [tts.Provider] contract.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/speakswap/speakswap/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_24000"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithDefaultVoice sets the voice ID used when a request does not name one.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) {
		p.defaultVoice = voiceID
	}
}

// WithEndpoint overrides the WebSocket endpoint format string. Intended for
// tests; the format must contain two %s verbs (voice ID, model ID).
func WithEndpoint(format string) Option {
	return func(p *Provider) {
		p.endpointFmt = format
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	defaultVoice string
	endpointFmt  string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpointFmt:  wsEndpointFmt,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends the text, and collects
// the streamed PCM chunks into one buffer.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	if req.Text == "" {
		return tts.Result{}, errors.New("elevenlabs: text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = p.defaultVoice
	}
	if voice == "" {
		return tts.Result{}, errors.New("elevenlabs: no voice configured for request")
	}

	wsURL := fmt.Sprintf(p.endpointFmt, voice, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

	// BOI handshake: authenticate and configure the stream. ElevenLabs
	// requires a non-empty first text value.
	boi := boiMessage{
		Text:          " ",
		VoiceSettings: vs,
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	// The text, then an empty-text flush to close the input stream.
	msgBytes, _ := json.Marshal(textMessage{Text: req.Text, VoiceSettings: vs})
	if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	flushBytes, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, flushBytes); err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return tts.Result{}, fmt.Errorf("elevenlabs: read: %w", ctx.Err())
			}
			// The server closes the socket after the final chunk.
			break
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				pcm = append(pcm, chunk...)
			}
		}
		if resp.IsFinal {
			break
		}
	}

	if len(pcm) == 0 {
		return tts.Result{}, errors.New("elevenlabs: no audio received")
	}
	return tts.Result{
		PCM:        pcm,
		SampleRate: outputSampleRate(p.outputFormat),
		Channels:   1,
	}, nil
}

// outputSampleRate derives the PCM sample rate from an ElevenLabs output
// format string such as "pcm_24000". Unknown formats fall back to 24 kHz.
func outputSampleRate(format string) int {
	if rest, ok := strings.CutPrefix(format, "pcm_"); ok {
		if rate, err := strconv.Atoi(rest); err == nil && rate > 0 {
			return rate
		}
	}
	return 24000
}
