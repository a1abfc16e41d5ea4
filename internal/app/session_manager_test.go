package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/internal/observe"
	"github.com/speakswap/speakswap/internal/relay"
	"github.com/speakswap/speakswap/internal/resilience"
	"github.com/speakswap/speakswap/pkg/audio"
	audiomock "github.com/speakswap/speakswap/pkg/audio/mock"
	sttmock "github.com/speakswap/speakswap/pkg/provider/stt/mock"
	translatemock "github.com/speakswap/speakswap/pkg/provider/translate/mock"
	ttsmock "github.com/speakswap/speakswap/pkg/provider/tts/mock"
	"github.com/speakswap/speakswap/pkg/provider/vad/energy"
)

const frameInterval = 20 * time.Millisecond

// fakeClock is a mutex-guarded manual clock shared by the session state and
// the segmenter in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// voicedFrame is a 20ms mono frame at normalized level 0.25, well above the
// default speech threshold.
func voicedFrame() []byte {
	frame := make([]byte, 960*2)
	for i := 0; i < len(frame); i += 2 {
		frame[i+1] = 0x20 // int16 8192
	}
	return frame
}

func silentFrame() []byte {
	return make([]byte, 960*2)
}

// testHarness bundles a SessionManager over mock providers and a mock audio
// platform, with everything observable.
type testHarness struct {
	manager   *SessionManager
	session   *relay.SessionState
	segmenter *relay.Segmenter
	clock     *fakeClock
	platform  *audiomock.Platform
	conn      *audiomock.Connection
	input     chan audio.AudioFrame
	output    chan audio.AudioFrame
	stt       *sttmock.Provider
	translate *translatemock.Provider
	tts       *ttsmock.Provider

	mu      sync.Mutex
	notices []string
}

func newTestHarness(t *testing.T, opts ...func(*SessionManagerConfig)) *testHarness {
	t.Helper()

	clock := newFakeClock()
	session, err := relay.NewSessionState("it", relay.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	queue := relay.NewQueue(nil)
	segmenter := relay.NewSegmenter(session, queue, energy.New(), relay.SegmenterConfig{
		Format: audio.Format{SampleRate: 48000, Channels: 1},
		Clock:  clock.Now,
	})

	files, err := conversation.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sttp := &sttmock.Provider{}
	trp := &translatemock.Provider{}
	ttsp := &ttsmock.Provider{}
	store := conversation.NewStore(sttp, trp, ttsp, files)
	local := relay.NewLocalStage(store, relay.WithPolling(100, 5*time.Millisecond))
	stages := resilience.NewFallbackGroup[relay.Stage](local, "local", resilience.FallbackConfig{})

	input := make(chan audio.AudioFrame, 256)
	output := make(chan audio.AudioFrame, 256)
	conn := &audiomock.Connection{
		InputStreamsResult: map[string]<-chan audio.AudioFrame{"alice": input},
		OutputStreamResult: output,
	}
	platform := &audiomock.Platform{ConnectResult: conn}

	h := &testHarness{
		session:   session,
		segmenter: segmenter,
		clock:     clock,
		platform:  platform,
		conn:      conn,
		input:     input,
		output:    output,
		stt:       sttp,
		translate: trp,
		tts:       ttsp,
	}

	cfg := SessionManagerConfig{
		Platform:      platform,
		Session:       session,
		Segmenter:     segmenter,
		Queue:         queue,
		Stages:        stages,
		TTS:           ttsp,
		Artifacts:     files,
		DefaultTarget: "en",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.manager = NewSessionManager(cfg)
	h.manager.SetNotifier(func(channelID, content string) {
		h.mu.Lock()
		h.notices = append(h.notices, channelID+"|"+content)
		h.mu.Unlock()
	})
	return h
}

func (h *testHarness) waitForNotice(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.notices) > 0 {
			n := h.notices[0]
			h.mu.Unlock()
			return n
		}
		h.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a translation notice")
	return ""
}

// feed pushes frames through the mock connection's input stream, advancing
// the shared clock per frame and yielding so the reader goroutine drains
// roughly in step.
func (h *testHarness) feed(frame []byte, n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(frameInterval)
		h.input <- audio.AudioFrame{Data: frame, SampleRate: 48000, Channels: 1}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionManager_JoinLeaveLifecycle(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	ctx := context.Background()

	if h.manager.Connected() {
		t.Fatal("manager reports connected before Join")
	}
	if err := h.manager.Leave(); err == nil {
		t.Error("Leave before Join should fail")
	}

	if err := h.manager.Join(ctx, "vc-1", "tc-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !h.manager.Connected() {
		t.Error("manager not connected after Join")
	}
	if got := h.manager.Status().ChannelID; got != "vc-1" {
		t.Errorf("Status().ChannelID = %q, want vc-1", got)
	}
	if len(h.platform.ConnectCalls) != 1 || h.platform.ConnectCalls[0].ChannelID != "vc-1" {
		t.Errorf("Connect calls = %+v, want one for vc-1", h.platform.ConnectCalls)
	}

	if err := h.manager.Join(ctx, "vc-2", "tc-2"); err == nil {
		t.Error("second Join should fail while connected")
	}

	if err := h.manager.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if h.manager.Connected() {
		t.Error("manager still connected after Leave")
	}
	if h.conn.CallCountDisconnect != 1 {
		t.Errorf("Disconnect call count = %d, want 1", h.conn.CallCountDisconnect)
	}
}

func TestSessionManager_SessionGaugeFollowsJoinLeave(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := newTestHarness(t, func(cfg *SessionManagerConfig) {
		cfg.Metrics = metrics
	})
	ctx := context.Background()

	gauge := func() int64 {
		t.Helper()
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		for _, sm := range rm.ScopeMetrics {
			for _, met := range sm.Metrics {
				if met.Name != "speakswap.active_sessions" {
					continue
				}
				sum, ok := met.Data.(metricdata.Sum[int64])
				if !ok || len(sum.DataPoints) != 1 {
					t.Fatalf("unexpected data for %s: %#v", met.Name, met.Data)
				}
				return sum.DataPoints[0].Value
			}
		}
		return 0
	}

	if err := h.manager.Join(ctx, "vc-1", "tc-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := gauge(); got != 1 {
		t.Fatalf("gauge after Join = %d, want 1", got)
	}

	if err := h.manager.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if got := gauge(); got != 0 {
		t.Fatalf("gauge after Leave = %d, want 0", got)
	}
}

func TestSessionManager_UtteranceFlowsToNotice(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.stt.Result.Text = "ciao a tutti"
	h.translate.Results = map[string]string{"it-IT->en-US": "hello everyone"}
	h.tts.Result.PCM = make([]byte, 48000)
	h.tts.Result.SampleRate = 24000
	h.tts.Result.Channels = 1

	if err := h.manager.Join(context.Background(), "vc-1", "tc-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer h.manager.Leave()

	if err := h.manager.StartTranslation("alice"); err != nil {
		t.Fatalf("StartTranslation: %v", err)
	}
	if err := h.manager.AddParticipant("bob", "en"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	// One second of speech, then enough silence to seal the utterance.
	h.feed(voicedFrame(), 50)
	h.feed(silentFrame(), 40)

	notice := h.waitForNotice(t)
	if !strings.HasPrefix(notice, "tc-1|") {
		t.Errorf("notice channel = %q, want prefix tc-1|", notice)
	}
	if !strings.Contains(notice, "hello everyone") {
		t.Errorf("notice %q does not carry the translation", notice)
	}
	if !strings.Contains(notice, "<@alice>") {
		t.Errorf("notice %q does not mention the speaker", notice)
	}

	// Synthesized audio reaches the voice connection, converted to the
	// 48kHz stereo transport format.
	select {
	case frame := <-h.output:
		if frame.SampleRate != 48000 || frame.Channels != 2 {
			t.Errorf("playback frame format = %d/%d, want 48000/2", frame.SampleRate, frame.Channels)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no playback frame arrived")
	}
}

func TestSessionManager_StartTranslationRequiresConnection(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	if err := h.manager.StartTranslation("alice"); err == nil {
		t.Error("StartTranslation should fail when not connected")
	}
}

func TestSessionManager_StopTranslationDeactivatesEveryone(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	if err := h.manager.Join(context.Background(), "vc-1", "tc-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer h.manager.Leave()

	if err := h.manager.AddParticipant("alice", "it"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := h.manager.AddParticipant("bob", "en"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if got := len(h.manager.Status().Participants); got != 2 {
		t.Fatalf("active participants = %d, want 2", got)
	}

	h.manager.StopTranslation()
	if got := len(h.manager.Status().Participants); got != 0 {
		t.Errorf("active participants after stop = %d, want 0", got)
	}
	if !h.manager.Connected() {
		t.Error("StopTranslation must keep the voice connection up")
	}
}

func TestSessionManager_AddParticipantRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	if err := h.manager.AddParticipant("alice", "tlh"); err == nil {
		t.Error("unsupported language should be rejected")
	}
	if h.session.IsActive("alice") {
		t.Error("participant must not be activated on rejected language")
	}
}

func TestSessionManager_SetThresholdValidation(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	if err := h.manager.SetThreshold(1.5); err == nil {
		t.Error("threshold above 1 should be rejected")
	}
	if err := h.manager.SetThreshold(0.3); err != nil {
		t.Errorf("SetThreshold(0.3): %v", err)
	}
	if got := h.manager.Status().Threshold; got != 0.3 {
		t.Errorf("Status().Threshold = %v, want 0.3", got)
	}
}

func TestSessionManager_LeaveEventDeactivatesParticipant(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	if err := h.manager.Join(context.Background(), "vc-1", "tc-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer h.manager.Leave()

	if err := h.manager.AddParticipant("bob", "en"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	h.conn.EmitEvent(audio.Event{Type: audio.EventLeave, UserID: "bob"})
	if h.session.IsActive("bob") {
		t.Error("participant still active after leave event")
	}
}

func TestSessionManager_StatusSnapshot(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	st := h.manager.Status()
	if st.Connected {
		t.Error("Connected should be false before Join")
	}
	if st.SourceLang != "it" || st.TargetLang != "en" {
		t.Errorf("default languages = %s/%s, want it/en", st.SourceLang, st.TargetLang)
	}
	if st.Threshold <= 0 {
		t.Errorf("Threshold = %v, want the detector default", st.Threshold)
	}
}
