package emoji

import (
	"strings"
	"testing"
)

func TestReplaceKnownPlaceholders(t *testing.T) {
	t.Parallel()
	got := Replace("Build :success: deployed :rocket: by :jenkins:")
	for _, glyph := range []string{Success, Rocket, Builder} {
		if !strings.Contains(got, glyph) {
			t.Fatalf("result %q missing glyph %q", got, glyph)
		}
	}
	if strings.Contains(got, ":success:") {
		t.Fatalf("placeholder left in result: %q", got)
	}
}

func TestReplaceUnknownPlaceholderPassesThrough(t *testing.T) {
	t.Parallel()
	in := "status :not_a_real_one: unchanged"
	if got := Replace(in); got != in {
		t.Fatalf("Replace(%q) = %q, want unchanged", in, got)
	}
}

func TestReplaceEmpty(t *testing.T) {
	t.Parallel()
	if got := Replace(""); got != "" {
		t.Fatalf("Replace(\"\") = %q", got)
	}
}

func TestForFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "image", file: "shot.PNG", want: Image},
		{name: "video", file: "demo.mp4", want: Video},
		{name: "audio", file: "alert.flac", want: Audio},
		{name: "archive", file: "build.tar", want: Archive},
		{name: "log", file: "console.log", want: Log},
		{name: "no extension", file: "README", want: Document},
		{name: "unknown", file: "report.pdf", want: Document},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ForFile(tt.file); got != tt.want {
				t.Fatalf("ForFile(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestForStatus(t *testing.T) {
	t.Parallel()
	if got := ForStatus("success"); got != Success {
		t.Fatalf("ForStatus(success) = %q", got)
	}
	if got := ForStatus("whatever"); got != NotBuilt {
		t.Fatalf("ForStatus fallback = %q, want %q", got, NotBuilt)
	}
}
