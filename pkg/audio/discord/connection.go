package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/speakswap/speakswap/pkg/audio"
)

var _ audio.Connection = (*Connection)(nil)

const (
	inputChannelBuffer  = 64
	outputChannelBuffer = 64
)

// Connection adapts a discordgo.VoiceConnection to [audio.Connection].
// Incoming Opus packets are demuxed by SSRC, decoded, and delivered on
// per-participant PCM channels; outgoing PCM frames are converted to the
// Discord voice format, cut into Opus-sized chunks, and encoded.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	inputsMu sync.RWMutex
	inputs   map[string]chan audio.AudioFrame // keyed by participant ID
	ssrcUser map[uint32]string                // SSRC -> userID mapping

	output chan audio.AudioFrame

	changeCb func(audio.Event)
	changeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection wraps an already-joined voice channel and starts the receive
// and send goroutines.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		inputs:       make(map[string]chan audio.AudioFrame),
		ssrcUser:     make(map[uint32]string),
		output:       make(chan audio.AudioFrame, outputChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// VoiceStateUpdate events drive join/leave notifications.
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	// Speaking updates carry the SSRC -> user mapping; they arrive before the
	// first audio packet from a participant, so recvLoop can key input streams
	// by user ID instead of raw SSRC.
	vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()
	go c.sendLoop()

	return c, nil
}

// InputStreams returns a snapshot of the current per-participant audio channels.
// The map key is the Discord user ID when the SSRC mapping is known, otherwise
// the SSRC rendered as a string; the value is the read-only input channel.
func (c *Connection) InputStreams() map[string]<-chan audio.AudioFrame {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	snap := make(map[string]<-chan audio.AudioFrame, len(c.inputs))
	for id, ch := range c.inputs {
		snap[id] = ch
	}
	return snap
}

// OutputStream returns the write-only channel for synthesized audio output.
// Frames written here are encoded to Opus and sent to Discord.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// OnParticipantChange registers cb for join/leave events. Registering again
// replaces the previous callback.
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// Disconnect stops both loops, removes the gateway handler, and closes every
// input channel so downstream consumers see EOF. Safe to call repeatedly.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		c.inputsMu.Lock()
		for id, ch := range c.inputs {
			close(ch)
			delete(c.inputs, id)
		}
		c.inputsMu.Unlock()
	})
	return err
}

// recvLoop drains vc.OpusRecv until the connection closes.
func (c *Connection) recvLoop() {
	// Opus decoders are stateful across frames, so each SSRC keeps its own.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			c.deliverPacket(decoders, pkt)
		}
	}
}

// deliverPacket decodes one incoming packet and forwards the PCM frame to
// the owning participant's input channel, creating the channel (and firing
// an EventJoin) on first contact.
func (c *Connection) deliverPacket(decoders map[uint32]*opusDecoder, pkt *discordgo.Packet) {
	participant := c.SSRCToUserID(pkt.SSRC)

	dec, exists := decoders[pkt.SSRC]
	if !exists {
		var err error
		dec, err = newOpusDecoder()
		if err != nil {
			slog.Error("discord: failed to create opus decoder", "participant", participant, "error", err)
			return
		}
		decoders[pkt.SSRC] = dec
	}

	c.inputsMu.Lock()
	ch, known := c.inputs[participant]
	if !known {
		ch = make(chan audio.AudioFrame, inputChannelBuffer)
		c.inputs[participant] = ch
	}
	c.inputsMu.Unlock()

	if !known {
		c.emitEvent(audio.Event{
			Type:   audio.EventJoin,
			UserID: participant,
		})
	}

	pcm, err := dec.decode(pkt.Opus)
	if err != nil {
		slog.Warn("discord: opus decode error", "participant", participant, "error", err)
		return
	}

	frame := audio.AudioFrame{
		Data:       pcm,
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
	}

	// A full channel means the consumer stalled; dropping the frame keeps
	// the receive path from blocking the whole voice connection.
	select {
	case ch <- frame:
	default:
	}
}

// sendLoop consumes the output channel: converts each frame to 48 kHz
// stereo, accumulates the PCM, and encodes exact Opus-frame-sized chunks
// onto vc.OpusSend.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "error", err)
		return
	}

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}}

	// Discord expects a speaking notification before audio flows.
	speakingSet := false

	// One Opus frame of input PCM: 960 samples/channel by 2 channels by
	// 2 bytes/sample.
	const opusFrameBytes = opusFrameSize * opusChannels * 2

	var buf []byte

	for {
		select {
		case <-c.done:
			if speakingSet {
				c.setSpeaking(false)
			}
			return
		case frame, ok := <-c.output:
			if !ok {
				return
			}

			if !speakingSet {
				c.setSpeaking(true)
				speakingSet = true
			}

			frame = conv.Convert(frame)
			buf = append(buf, frame.Data...)

			for len(buf) >= opusFrameBytes {
				packet, eErr := enc.encode(buf[:opusFrameBytes])
				buf = buf[opusFrameBytes:]
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					continue
				}

				select {
				case c.vc.OpusSend <- packet:
				case <-c.done:
					return
				}
			}
		}
	}
}

// handleVoiceStateUpdate turns gateway voice-state changes on our channel
// into join/leave events.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	channelID := c.vc.ChannelID

	username := ""
	if vsu.Member != nil && vsu.Member.User != nil {
		username = vsu.Member.User.Username
	}

	switch {
	case vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID:
		c.emitEvent(audio.Event{
			Type:     audio.EventLeave,
			UserID:   vsu.UserID,
			Username: username,
		})
	case vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID):
		c.emitEvent(audio.Event{
			Type:     audio.EventJoin,
			UserID:   vsu.UserID,
			Username: username,
		})
	}
}

// handleSpeakingUpdate records the SSRC -> user ID mapping announced by
// Discord before a participant's audio packets start flowing.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	c.inputsMu.Lock()
	c.ssrcUser[uint32(vs.SSRC)] = vs.UserID
	c.inputsMu.Unlock()
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}

// emitEvent invokes the registered callback, if any, on its own goroutine.
func (c *Connection) emitEvent(ev audio.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}

// SSRCToUserID returns the user ID associated with the given SSRC. The
// mapping is populated from VoiceSpeakingUpdate events; until one arrives
// the SSRC itself (rendered as a string) serves as the participant ID.
func (c *Connection) SSRCToUserID(ssrc uint32) string {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	userID, ok := c.ssrcUser[ssrc]
	if !ok {
		return strconv.FormatUint(uint64(ssrc), 10)
	}
	return userID
}
