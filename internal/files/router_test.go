package files

import (
	"context"
	"strings"
	"testing"

	"cibot/internal/compose"
	"cibot/internal/emoji"
	"cibot/internal/transport"
	"cibot/internal/transport/transporttest"
	logx "cibot/pkg/logx"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		file string
		want Category
	}{
		{file: "photo.PNG", want: Photo},
		{file: "pic.jpeg", want: Photo},
		{file: "clip.mp4", want: Video},
		{file: "song.flac", want: Audio},
		{file: "report.pdf", want: Document},
		{file: "noext", want: Document},
		{file: "archive.tar.gz", want: Document},
		{file: "trailing.", want: Document},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.file, func(t *testing.T) {
			if got := Classify(tt.file); got != tt.want {
				t.Fatalf("Classify(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestSendRoutesByCategory(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	r := NewRouter(compose.New(nil, logx.Nop()), logx.Nop())
	to := transport.ChatTarget{ChatID: 5}

	cases := []struct {
		file string
		op   string
	}{
		{file: "shot.png", op: "photo"},
		{file: "demo.mov", op: "video"},
		{file: "beep.mp3", op: "audio"},
		{file: "build.log", op: "document"},
	}
	for _, c := range cases {
		if err := r.Send(context.Background(), client, to, strings.NewReader("data"), c.file, "", nil); err != nil {
			t.Fatalf("Send(%q): %v", c.file, err)
		}
	}

	sends := client.Sends()
	if len(sends) != len(cases) {
		t.Fatalf("recorded %d sends, want %d", len(sends), len(cases))
	}
	for i, c := range cases {
		if sends[i].Op != c.op {
			t.Fatalf("send %d used %q, want %q", i, sends[i].Op, c.op)
		}
		if sends[i].Content != "data" {
			t.Fatalf("send %d content = %q", i, sends[i].Content)
		}
	}
}

func TestSendComposesAndPrefixesCaption(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	r := NewRouter(compose.New(compose.MapExpander{}, logx.Nop()), logx.Nop())

	err := r.Send(context.Background(), client, transport.ChatTarget{ChatID: 1},
		strings.NewReader("img"), "graph.png", "Coverage ${PCT} :chart:", compose.Context{"PCT": "93%"})
	if err != nil {
		t.Fatal(err)
	}

	sends := client.Sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	caption := sends[0].Text
	if !strings.HasPrefix(caption, emoji.Image+" ") {
		t.Fatalf("caption %q missing image glyph prefix", caption)
	}
	if !strings.Contains(caption, "93%") || !strings.Contains(caption, emoji.Chart) {
		t.Fatalf("caption not composed: %q", caption)
	}
}

func TestSendEmptyCaptionStaysEmpty(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	r := NewRouter(compose.New(nil, logx.Nop()), logx.Nop())

	if err := r.Send(context.Background(), client, transport.ChatTarget{ChatID: 1},
		strings.NewReader("x"), "a.pdf", "", nil); err != nil {
		t.Fatal(err)
	}
	if got := client.Sends()[0].Text; got != "" {
		t.Fatalf("caption = %q, want empty", got)
	}
}

func TestSendNilContentFails(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	r := NewRouter(compose.New(nil, logx.Nop()), logx.Nop())

	if err := r.Send(context.Background(), client, transport.ChatTarget{ChatID: 1}, nil, "a.pdf", "", nil); err == nil {
		t.Fatal("expected error for nil content")
	}
	if len(client.Sends()) != 0 {
		t.Fatal("send attempted despite missing content")
	}
}
