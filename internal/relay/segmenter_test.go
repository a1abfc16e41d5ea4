package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/speakswap/speakswap/pkg/audio"
	"github.com/speakswap/speakswap/pkg/provider/vad"
	"github.com/speakswap/speakswap/pkg/provider/vad/energy"
	vadmock "github.com/speakswap/speakswap/pkg/provider/vad/mock"
)

const frameInterval = 20 * time.Millisecond

var testFormat = audio.Format{SampleRate: 48000, Channels: 1}

// voicedFrame returns a frame at normalized level 0.25, well above the
// default threshold.
func voicedFrame() []byte {
	frame := make([]byte, 960*2)
	for i := 0; i < len(frame); i += 2 {
		frame[i] = 0x00
		frame[i+1] = 0x20 // int16 8192
	}
	return frame
}

func silentFrame() []byte {
	return make([]byte, 960*2)
}

// newTestSegmenter wires a segmenter with a fake clock and the real
// amplitude detector.
func newTestSegmenter(t *testing.T) (*Segmenter, *SessionState, *Queue, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	session, err := NewSessionState("it", WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	queue := NewQueue(nil)
	seg := NewSegmenter(session, queue, energy.New(), SegmenterConfig{
		SilenceDuration:   700 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
		Format:            testFormat,
		Clock:             clock.Now,
	})
	return seg, session, queue, clock
}

// feed pushes n frames, advancing the clock between each.
func feed(seg *Segmenter, clock *fakeClock, participant string, frame []byte, n int) {
	for i := 0; i < n; i++ {
		clock.Advance(frameInterval)
		seg.OnFrame(participant, frame)
	}
}

func TestSegmenter_SilenceOnlyEmitsNothing(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")

	feed(seg, clock, "alice", silentFrame(), 200)

	if got := queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0 for pure silence", got)
	}
}

func TestSegmenter_SealsUtteranceAfterSilence(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")
	if err := session.SetLanguage("alice", "it"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}

	voiced, silent := 30, 40 // 600ms speech, 800ms trailing silence
	feed(seg, clock, "alice", voicedFrame(), voiced)
	feed(seg, clock, "alice", silentFrame(), silent)

	u, ok := queue.Pop()
	if !ok {
		t.Fatal("expected one sealed utterance")
	}
	if _, again := queue.Pop(); again {
		t.Fatal("expected exactly one sealed utterance")
	}

	if u.Participant != "alice" {
		t.Errorf("Participant = %q, want alice", u.Participant)
	}
	if u.Language != "it" {
		t.Errorf("Language = %q, want it", u.Language)
	}
	if u.Format != testFormat {
		t.Errorf("Format = %+v, want %+v", u.Format, testFormat)
	}
	if u.Generation == 0 {
		t.Error("Generation should be set at seal time")
	}

	// Every frame since the previous seal belongs to the utterance: voiced
	// frames plus the silence up to and including the sealing frame.
	frameLen := len(voicedFrame())
	sealFrame := voiced + 35 // silence crosses 700ms on the 35th silent frame
	if got, want := len(u.PCM), sealFrame*frameLen; got != want {
		t.Errorf("PCM length = %d bytes, want %d", got, want)
	}

	if !session.Processing("alice") {
		t.Error("sealing should leave the participant's processing flag set")
	}
}

func TestSegmenter_ProcessingBlocksSealing(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")

	gen, ok := session.BeginProcessing("alice")
	if !ok {
		t.Fatal("BeginProcessing: slot should be free")
	}

	feed(seg, clock, "alice", voicedFrame(), 30)
	feed(seg, clock, "alice", silentFrame(), 40)
	if got := queue.Len(); got != 0 {
		t.Fatalf("queue length = %d, want 0 while a run is in flight", got)
	}

	// The run completes; the buffered utterance seals on the next frame.
	session.EndProcessing("alice", gen)
	feed(seg, clock, "alice", silentFrame(), 1)

	u, ok := queue.Pop()
	if !ok {
		t.Fatal("expected the buffered utterance to seal after the run cleared")
	}
	if u.Generation == gen {
		t.Error("sealed utterance should carry a fresh generation")
	}
}

func TestSegmenter_ShortBurstBelowMinSpeechNotSealed(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")

	// 200ms of speech is below the 500ms minimum.
	feed(seg, clock, "alice", voicedFrame(), 10)
	feed(seg, clock, "alice", silentFrame(), 50)

	if got := queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0 for a sub-minimum burst", got)
	}
}

func TestSegmenter_IdleSilenceKeepsBoundedPreroll(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")

	// Minutes of sub-threshold audio from an active participant must not
	// accumulate. Only one silence window of pre-roll survives to the seal.
	feed(seg, clock, "alice", silentFrame(), 600)
	feed(seg, clock, "alice", voicedFrame(), 30)
	feed(seg, clock, "alice", silentFrame(), 40)

	u, ok := queue.Pop()
	if !ok {
		t.Fatal("expected a sealed utterance")
	}
	frameLen := len(silentFrame())
	preroll := 35   // 700ms silence window at 20ms frames
	sealFrame := 65 // 30 voiced plus 35 trailing silent frames
	if got, want := len(u.PCM), (preroll+sealFrame)*frameLen; got != want {
		t.Errorf("PCM length = %d bytes, want %d with pre-roll capped", got, want)
	}
}

func TestSegmenter_ThresholdAdjustableAtRuntime(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")

	if err := seg.SetThreshold(0); err == nil {
		t.Error("SetThreshold(0) should be rejected")
	}
	if err := seg.SetThreshold(1.5); err == nil {
		t.Error("SetThreshold(1.5) should be rejected")
	}

	// Raise the threshold above the test frames' 0.25 level: the same audio
	// that seals under the default threshold now reads as silence.
	if err := seg.SetThreshold(0.5); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if got := seg.Threshold(); got != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", got)
	}

	feed(seg, clock, "alice", voicedFrame(), 30)
	feed(seg, clock, "alice", silentFrame(), 40)
	if got := queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0 with raised threshold", got)
	}
}

func TestSegmenter_DeactivationDropsBufferedAudio(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")

	feed(seg, clock, "alice", voicedFrame(), 30)
	session.Deactivate("alice")
	feed(seg, clock, "alice", silentFrame(), 40)

	if got := queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0 after deactivation", got)
	}

	// Re-joining starts a fresh capture; the dropped audio is gone.
	session.Activate("alice")
	feed(seg, clock, "alice", silentFrame(), 40)
	if got := queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0 for silence after re-join", got)
	}
}

func TestSegmenter_IndependentParticipants(t *testing.T) {
	t.Parallel()

	seg, session, queue, clock := newTestSegmenter(t)
	session.Activate("alice")
	session.Activate("bob")
	if err := session.SetLanguage("bob", "en"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}

	// Interleave: both speak, then both fall silent.
	for i := 0; i < 30; i++ {
		clock.Advance(frameInterval)
		seg.OnFrame("alice", voicedFrame())
		seg.OnFrame("bob", voicedFrame())
	}
	for i := 0; i < 40; i++ {
		clock.Advance(frameInterval)
		seg.OnFrame("alice", silentFrame())
		seg.OnFrame("bob", silentFrame())
	}

	if got := queue.Len(); got != 2 {
		t.Fatalf("queue length = %d, want one utterance per speaker", got)
	}
	langs := map[string]string{}
	for i := 0; i < 2; i++ {
		u, _ := queue.Pop()
		langs[u.Participant] = u.Language
	}
	if langs["alice"] != "it" || langs["bob"] != "en" {
		t.Errorf("per-speaker languages = %v, want alice:it bob:en", langs)
	}
}

// newScriptedSegmenter wires a segmenter whose voicing decisions come from a
// scripted detector instead of real signal energy.
func newScriptedSegmenter(t *testing.T, engine vad.Engine) (*Segmenter, *SessionState, *Queue, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	session, err := NewSessionState("it", WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	queue := NewQueue(nil)
	seg := NewSegmenter(session, queue, engine, SegmenterConfig{
		SilenceDuration:   700 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
		Format:            testFormat,
		Clock:             clock.Now,
	})
	return seg, session, queue, clock
}

func TestSegmenter_ScriptedDetectorDrivesVoicing(t *testing.T) {
	t.Parallel()

	detector := &vadmock.Session{EventResult: vad.VADEvent{Type: vad.VADSpeechStart, Probability: 0.9}}
	engine := &vadmock.Engine{Session: detector}
	seg, session, queue, clock := newScriptedSegmenter(t, engine)
	session.Activate("alice")

	// The frames are pure silence; only the scripted detector says otherwise.
	feed(seg, clock, "alice", silentFrame(), 30)
	detector.EventResult = vad.VADEvent{Type: vad.VADSilence, Probability: 0.0}
	feed(seg, clock, "alice", silentFrame(), 40)

	if got := queue.Len(); got != 1 {
		t.Fatalf("queue length = %d, want 1 sealed utterance", got)
	}
	if calls := len(engine.NewSessionCalls); calls != 1 {
		t.Fatalf("NewSession calls = %d, want one session per participant", calls)
	}
	if cfg := engine.NewSessionCalls[0].Cfg; cfg.SampleRate != testFormat.SampleRate {
		t.Errorf("session sample rate = %d, want %d", cfg.SampleRate, testFormat.SampleRate)
	}
	if frames := len(detector.ProcessFrameCalls); frames != 70 {
		t.Errorf("detector saw %d frames, want 70", frames)
	}
}

func TestSegmenter_DetectorErrorFallsBackToSignalLevel(t *testing.T) {
	t.Parallel()

	detector := &vadmock.Session{ProcessFrameErr: errors.New("model not loaded")}
	seg, session, queue, clock := newScriptedSegmenter(t, &vadmock.Engine{Session: detector})
	session.Activate("alice")

	// With the detector failing, voicing falls back to the frames' own
	// energy, which is well above the default threshold.
	feed(seg, clock, "alice", voicedFrame(), 30)
	feed(seg, clock, "alice", silentFrame(), 40)

	if got := queue.Len(); got != 1 {
		t.Errorf("queue length = %d, want 1 despite detector errors", got)
	}
}

func TestSegmenter_SessionUnavailableFallsBackToSignalLevel(t *testing.T) {
	t.Parallel()

	engine := &vadmock.Engine{NewSessionErr: errors.New("no capacity")}
	seg, session, queue, clock := newScriptedSegmenter(t, engine)
	session.Activate("alice")

	feed(seg, clock, "alice", voicedFrame(), 30)
	feed(seg, clock, "alice", silentFrame(), 40)

	if got := queue.Len(); got != 1 {
		t.Errorf("queue length = %d, want 1 without a detector session", got)
	}
	if len(engine.NewSessionCalls) == 0 {
		t.Error("expected the segmenter to ask the engine for a session")
	}
}

func TestSegmenter_DropClosesDetectorSession(t *testing.T) {
	t.Parallel()

	detector := &vadmock.Session{EventResult: vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 0.9}}
	seg, session, _, clock := newScriptedSegmenter(t, &vadmock.Engine{Session: detector})
	session.Activate("alice")

	feed(seg, clock, "alice", silentFrame(), 10)
	session.Deactivate("alice")
	feed(seg, clock, "alice", silentFrame(), 1)

	if detector.CloseCallCount != 1 {
		t.Errorf("detector Close calls = %d, want 1 after participant drop", detector.CloseCallCount)
	}
}

func TestUtterance_Duration(t *testing.T) {
	t.Parallel()

	u := Utterance{
		PCM:    make([]byte, 48000*2), // one second mono at 48kHz
		Format: testFormat,
	}
	if got := u.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := (Utterance{}).Duration(); got != 0 {
		t.Errorf("zero utterance Duration = %v, want 0", got)
	}
}
