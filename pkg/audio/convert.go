package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter rewrites frames into a target format, e.g. provider output
// at 24000Hz mono into the 48000Hz stereo a Discord voice connection plays.
// It warns once per stream on the first mismatch and drops frames whose byte
// count cannot hold whole int16 samples. Create one per stream; it is not
// safe for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. A frame already in the target
// format passes through untouched. Resampling happens before channel
// conversion so a downmix never runs on freshly upsampled data.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	if frame.SampleRate != c.Target.SampleRate {
		pcm = resample16(pcm, frame.SampleRate, c.Target.SampleRate, frame.Channels)
	}
	switch {
	case frame.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case frame.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream pipes in through a FormatConverter in a goroutine. The
// returned channel closes when in closes; frames dropped by the converter
// never appear on it.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// sample16 reads the little-endian int16 at sample index i.
func sample16(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

// putSample16 writes s as little-endian int16 at sample index i.
func putSample16(out []byte, i int, s int16) {
	out[i*2] = byte(s)
	out[i*2+1] = byte(s >> 8)
}

// MonoToStereo duplicates each int16 mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := range samples {
		s := sample16(pcm, i)
		putSample16(out, i*2, s)
		putSample16(out, i*2+1, s)
	}
	return out
}

// StereoToMono averages each L+R pair into one sample, clamping to the int16
// range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sample16(pcm, i*2)) + int32(sample16(pcm, i*2+1))) / 2
		putSample16(out, i, clamp16(avg))
	}
	return out
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate by linear
// interpolation. Equal rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, srcRate, dstRate, 1)
}

// ResampleStereo16 resamples interleaved 16-bit stereo PCM from srcRate to
// dstRate by linear interpolation. Equal rates return the input unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, srcRate, dstRate, 2)
}

// resample16 is the shared linear-interpolation core. channels interleaved
// samples form one frame; each output frame interpolates between the two
// nearest source frames per channel.
func resample16(pcm []byte, srcRate, dstRate, channels int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	if channels < 1 {
		channels = 1
	}
	frameBytes := channels * 2
	if len(pcm) < frameBytes {
		return pcm
	}
	srcFrames := len(pcm) / frameBytes
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		nextIdx := srcIdx + 1
		if nextIdx >= srcFrames {
			nextIdx = srcIdx
		}

		for ch := range channels {
			s0 := sample16(pcm, srcIdx*channels+ch)
			s1 := sample16(pcm, nextIdx*channels+ch)
			interp := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			putSample16(out, i*channels+ch, interp)
		}
	}
	return out
}

// formatString renders a format for log output, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
