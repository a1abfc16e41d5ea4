package whisper

import "encoding/binary"

// whisper.cpp consumes mono float32 samples in [-1, 1], while the capture
// side hands us interleaved little-endian int16 PCM. Every transcription
// request goes through this down-mix before inference.

// pcmScale maps the int16 range onto [-1, 1). Exact in float32 since it
// is a power of two.
const pcmScale = 1.0 / 32768.0

func sampleAt(pcm []byte, i int) float32 {
	return float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) * pcmScale
}

// pcmToFloat32 converts 16-bit little-endian PCM to normalised float32
// samples. A trailing odd byte is dropped.
func pcmToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = sampleAt(pcm, i)
	}
	return out
}

// pcmToFloat32Mono averages interleaved channels down to a mono signal.
// One channel (or fewer) passes straight through pcmToFloat32.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for f := range frames {
		var sum float32
		for ch := range channels {
			sum += sampleAt(pcm, f*channels+ch)
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}
