package energy

import (
	"testing"

	"github.com/speakswap/speakswap/pkg/provider/vad"
)

// pcmFrame builds a 16-bit LE PCM frame where every sample has the given value.
func pcmFrame(sample int16, samples int) []byte {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		b[i*2] = byte(sample)
		b[i*2+1] = byte(sample >> 8)
	}
	return b
}

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		frame  []byte
		want   float64
		within float64
	}{
		{"empty", nil, 0, 0},
		{"silence", pcmFrame(0, 960), 0, 0},
		{"full scale", pcmFrame(-32768, 960), 1.0, 0.001},
		{"half scale", pcmFrame(16384, 960), 0.5, 0.001},
		{"quiet noise", pcmFrame(100, 960), 100.0 / 32768.0, 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Level(tt.frame)
			if diff := got - tt.want; diff < -tt.within || diff > tt.within {
				t.Errorf("Level = %v, want %v ± %v", got, tt.want, tt.within)
			}
		})
	}
}

func TestSessionHysteresis(t *testing.T) {
	t.Parallel()

	eng := New()
	sess, err := eng.NewSession(vad.Config{
		SampleRate:       48000,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.010,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	loud := pcmFrame(2000, 960)  // ~0.061
	medium := pcmFrame(400, 960) // ~0.012, between the two thresholds
	quiet := pcmFrame(100, 960)  // ~0.003

	steps := []struct {
		frame []byte
		want  vad.VADEventType
	}{
		{quiet, vad.VADSilence},
		{medium, vad.VADSilence}, // below speech threshold, not yet speaking
		{loud, vad.VADSpeechStart},
		{loud, vad.VADSpeechContinue},
		{medium, vad.VADSpeechContinue}, // hysteresis holds speech open
		{quiet, vad.VADSpeechEnd},
		{quiet, vad.VADSilence},
		{loud, vad.VADSpeechStart}, // new burst starts a new segment
	}
	for i, st := range steps {
		ev, err := sess.ProcessFrame(st.frame)
		if err != nil {
			t.Fatalf("step %d: ProcessFrame: %v", i, err)
		}
		if ev.Type != st.want {
			t.Errorf("step %d: type = %v, want %v (level %v)", i, ev.Type, st.want, ev.Probability)
		}
	}
}

func TestSessionResetClearsSpeechState(t *testing.T) {
	t.Parallel()

	eng := New()
	sess, err := eng.NewSession(vad.Config{SpeechThreshold: 0.015, SilenceThreshold: 0.015})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	loud := pcmFrame(2000, 960)
	if ev, _ := sess.ProcessFrame(loud); ev.Type != vad.VADSpeechStart {
		t.Fatalf("first loud frame: type = %v, want VADSpeechStart", ev.Type)
	}
	sess.Reset()
	if ev, _ := sess.ProcessFrame(loud); ev.Type != vad.VADSpeechStart {
		t.Errorf("after Reset: type = %v, want VADSpeechStart", ev.Type)
	}
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	eng := New()
	invalid := []vad.Config{
		{SpeechThreshold: -0.1},
		{SpeechThreshold: 1.5},
		{SpeechThreshold: 0.2, SilenceThreshold: 0.5}, // silence above speech
	}
	for _, cfg := range invalid {
		if _, err := eng.NewSession(cfg); err == nil {
			t.Errorf("NewSession(%+v): want error, got nil", cfg)
		}
	}
}

func TestSessionRejectsOddFrames(t *testing.T) {
	t.Parallel()

	eng := New()
	sess, _ := eng.NewSession(vad.Config{SpeechThreshold: 0.015, SilenceThreshold: 0.015})
	defer sess.Close()

	if _, err := sess.ProcessFrame([]byte{0x01}); err == nil {
		t.Error("odd-length frame: want error, got nil")
	}
}

func TestClosedSessionErrors(t *testing.T) {
	t.Parallel()

	eng := New()
	sess, _ := eng.NewSession(vad.Config{SpeechThreshold: 0.015, SilenceThreshold: 0.015})
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := sess.ProcessFrame(pcmFrame(0, 10)); err == nil {
		t.Error("ProcessFrame after Close: want error, got nil")
	}
}
