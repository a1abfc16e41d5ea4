package conversation

import (
	"bytes"
	"testing"

	"github.com/speakswap/speakswap/pkg/audio"
)

func TestFileStore_SaveAndRead(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	pcm := bytes.Repeat([]byte{0x12, 0x34}, 100)
	id, err := fs.Save(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := fs.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	decoded, format, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("round-tripped PCM differs")
	}
	if format.SampleRate != 24000 || format.Channels != 1 {
		t.Errorf("format = %+v, want 24000/1", format)
	}

	// The .wav suffix is accepted on lookup, as served URLs carry it.
	if _, err := fs.Path(id + ".wav"); err != nil {
		t.Errorf("Path with suffix: %v", err)
	}
}

func TestFileStore_RejectsInvalidIDs(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	for _, id := range []string{"", "../../etc/passwd", "not-a-uuid", "a/b"} {
		if _, err := fs.Path(id); err == nil {
			t.Errorf("Path(%q): expected error", id)
		}
	}
}

func TestFileStore_RemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	id, err := fs.Save([]byte{0, 0}, 16000, 1)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := fs.Remove(id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fs.Path(id); err == nil {
		t.Error("artifact should be gone after Remove")
	}
	if err := fs.Remove(id); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}
