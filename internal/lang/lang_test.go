package lang

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	for _, code := range Codes() {
		if err := Validate(code); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", code, err)
		}
	}

	for _, code := range []string{"", "xx", "IT", "it-IT", "klingon"} {
		err := Validate(code)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Validate(%q) = %v, want ErrUnsupported", code, err)
		}
	}
}

func TestLocaleAndVoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code   string
		locale string
		voice  string
	}{
		{"it", "it-IT", "it-IT-ElsaNeural"},
		{"en", "en-US", "en-US-JennyNeural"},
		{"pt", "pt-BR", "pt-BR-FranciscaNeural"},
		{"zh", "zh-CN", "zh-CN-XiaoxiaoNeural"},
		// Unknown codes fall back to recognizer/synthesis defaults.
		{"xx", "it-IT", "en-US-JennyNeural"},
	}
	for _, tt := range tests {
		if got := Locale(tt.code); got != tt.locale {
			t.Errorf("Locale(%q) = %q, want %q", tt.code, got, tt.locale)
		}
		if got := Voice(tt.code); got != tt.voice {
			t.Errorf("Voice(%q) = %q, want %q", tt.code, got, tt.voice)
		}
	}
}

func TestCodesSortedAndComplete(t *testing.T) {
	t.Parallel()

	codes := Codes()
	if len(codes) != 10 {
		t.Fatalf("len(Codes()) = %d, want 10", len(codes))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("Codes() not sorted: %v", codes)
		}
	}
	for _, c := range codes {
		if Voice(c) == "" || Locale(c) == "" {
			t.Errorf("code %q missing locale or voice", c)
		}
	}
}
