package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavBitsPerSample is the only sample width the relay handles. All PCM flowing
// through the pipeline is 16-bit signed little-endian.
const wavBitsPerSample = 16

// ErrInvalidWAV is returned by [DecodeWAV] when the input is not a PCM
// RIFF/WAV container this package can handle.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for writing to disk
// or for direct inclusion in a multipart form upload.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * wavBitsPerSample / 8
	blockAlign := channels * wavBitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], wavBitsPerSample)   // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts 16-bit PCM data and its format from a RIFF/WAV container.
// Only uncompressed 16-bit PCM is supported; anything else returns
// [ErrInvalidWAV]. Chunks other than "fmt " and "data" are skipped, so files
// with LIST/INFO metadata decode fine.
func DecodeWAV(wav []byte) (pcm []byte, format Format, err error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		haveFmt  bool
		haveData bool
	)
	off := 12
	for off+8 <= len(wav) {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		if body+size > len(wav) {
			// Tolerate a truncated final data chunk from streaming writers.
			if id == "data" {
				size = len(wav) - body
			} else {
				return nil, Format{}, fmt.Errorf("%w: chunk %q exceeds file size", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			audioFormat := binary.LittleEndian.Uint16(wav[body : body+2])
			channels := int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			sampleRate := int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bps := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if audioFormat != 1 || bps != wavBitsPerSample {
				return nil, Format{}, fmt.Errorf("%w: want 16-bit PCM, got format=%d bits=%d", ErrInvalidWAV, audioFormat, bps)
			}
			if channels < 1 || sampleRate <= 0 {
				return nil, Format{}, fmt.Errorf("%w: channels=%d rate=%d", ErrInvalidWAV, channels, sampleRate)
			}
			format = Format{SampleRate: sampleRate, Channels: channels}
			haveFmt = true
		case "data":
			pcm = wav[body : body+size]
			haveData = true
		}

		// Chunks are word-aligned.
		if size%2 != 0 {
			size++
		}
		off = body + size
	}

	if !haveFmt || !haveData {
		return nil, Format{}, fmt.Errorf("%w: missing fmt or data chunk", ErrInvalidWAV)
	}
	return pcm, format, nil
}
