package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("authorization", "Bearer abc"); got.Value.String() != RedactedValue {
		t.Fatalf("authorization not redacted: %v", got)
	}
	if got := MaskField("Pool", "help"); got.Value.String() != "help" {
		t.Fatalf("allowlisted key redacted: %v", got)
	}
	if got := MaskField("secret", ""); got.Value.String() != "" {
		t.Fatalf("empty value should pass through: %v", got)
	}
}
