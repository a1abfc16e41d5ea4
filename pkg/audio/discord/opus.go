package discord

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Discord voice carries 48 kHz stereo Opus in 20 ms packets. Everything in
// this package is pinned to that format; pcm/Opus conversion for other
// rates lives in pkg/audio.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20

	// opusFrameSize is samples per channel per packet (960 at 48 kHz / 20 ms).
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000
)

// opusDecoder decodes one participant's Opus stream. Opus decoders carry
// inter-frame state, so each SSRC must keep its own instance.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode expands an Opus packet into interleaved little-endian int16 PCM.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	samples, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("discord: opus decode: %w", err)
	}
	return samplesToPCM(samples), nil
}

// opusEncoder encodes the bot's outgoing playback stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode packs one frame of interleaved little-endian int16 PCM into an
// Opus packet.
func (e *opusEncoder) encode(pcm []byte) ([]byte, error) {
	packet, err := e.enc.Encode(pcmToSamples(pcm), opusFrameSize, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return packet, nil
}

func samplesToPCM(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func pcmToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
