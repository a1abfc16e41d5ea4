package relay

import (
	"context"
	"sync"
	"time"

	"github.com/speakswap/speakswap/pkg/audio"
)

// playbackFrameDuration is the pacing interval for output frames, matching
// the voice transport's 20ms framing.
const playbackFrameDuration = 20 * time.Millisecond

// Player streams synthesized audio into one voice connection's output.
// Starting a new playback cancels the one in progress: translated utterances
// never overlap on the same connection, the freshest one wins.
type Player struct {
	out    chan<- audio.AudioFrame
	format audio.Format

	mu      sync.Mutex
	cancel  context.CancelFunc
	current sync.WaitGroup
}

// NewPlayer creates a player writing to out, converting all audio to format
// (the transport's expected sample rate and channel count).
func NewPlayer(out chan<- audio.AudioFrame, format audio.Format) *Player {
	return &Player{out: out, format: format}
}

// Play converts pcm to the transport format and streams it to the output
// channel, paced at the transport frame rate. Any in-progress playback on
// this player is cancelled first. Play returns once streaming has started;
// it does not wait for completion.
func (p *Player) Play(ctx context.Context, pcm []byte, format audio.Format) {
	if len(pcm) == 0 {
		return
	}

	conv := &audio.FormatConverter{Target: p.format}
	frame := conv.Convert(audio.AudioFrame{
		Data:       pcm,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	})
	if len(frame.Data) == 0 {
		return
	}

	playCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.current.Wait() // previous goroutine observes its cancel and exits
	p.current.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.current.Done()
		p.stream(playCtx, frame.Data)
	}()
}

// Stop cancels any in-progress playback and waits for it to drain.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.current.Wait()
}

// stream chunks data into transport frames and writes them paced.
func (p *Player) stream(ctx context.Context, data []byte) {
	frameBytes := p.format.SampleRate * p.format.Channels * 2 *
		int(playbackFrameDuration.Milliseconds()) / 1000
	if frameBytes <= 0 {
		return
	}

	ticker := time.NewTicker(playbackFrameDuration)
	defer ticker.Stop()

	for offset := 0; offset < len(data); offset += frameBytes {
		end := offset + frameBytes
		if end > len(data) {
			end = len(data)
		}
		select {
		case <-ctx.Done():
			return
		case p.out <- audio.AudioFrame{
			Data:       data[offset:end],
			SampleRate: p.format.SampleRate,
			Channels:   p.format.Channels,
		}:
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
