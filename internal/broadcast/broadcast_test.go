package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"cibot/internal/compose"
	"cibot/internal/files"
	"cibot/internal/registry"
	"cibot/internal/transport"
	"cibot/internal/transport/transporttest"
	logx "cibot/pkg/logx"
)

type staticProvider struct{ client transport.Client }

func (p staticProvider) ActiveClient() transport.Client { return p.client }

type memSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *memSink) Println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *memSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func newBroadcaster(t *testing.T, cfg Config, client transport.Client, reg *registry.Registry, sink Sink) *Broadcaster {
	t.Helper()
	composer := compose.New(compose.MapExpander{}, logx.Nop())
	router := files.NewRouter(composer, logx.Nop())
	return New(cfg, staticProvider{client: client}, reg, composer, router, sink, logx.Nop())
}

func approvedRegistry(t *testing.T, ids ...int64) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.ApproveAll, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		reg.Subscribe("chat", id)
	}
	return reg
}

func TestSendSingleTarget(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	b := newBroadcaster(t, Config{}, client, approvedRegistry(t), nil)

	if err := b.Send(context.Background(), Message{Target: ToChat(42), Body: "Build :success:"}); err != nil {
		t.Fatal(err)
	}
	sends := client.SendsTo(42)
	if len(sends) != 1 {
		t.Fatalf("sends to 42 = %d, want 1", len(sends))
	}
	if !strings.Contains(sends[0].Text, "✅") {
		t.Fatalf("text not composed: %q", sends[0].Text)
	}
}

func TestSendSingleTargetReturnsAPIError(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	client.Errs[7] = errors.New("forbidden: bot was blocked")
	b := newBroadcaster(t, Config{}, client, approvedRegistry(t), nil)

	if err := b.Send(context.Background(), Message{Target: ToChat(7), Body: "x"}); err == nil {
		t.Fatal("expected API error for single-target send")
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	client.Errs[2] = errors.New("forbidden: bot was blocked")
	reg := approvedRegistry(t, 1, 2, 3)
	b := newBroadcaster(t, Config{Workers: 2}, client, reg, nil)

	if err := b.Send(context.Background(), Message{Target: ToAll(), Body: "release :rocket:"}); err != nil {
		t.Fatalf("broadcast returned error: %v", err)
	}
	if n := len(client.SendsTo(1)); n != 1 {
		t.Fatalf("recipient 1 got %d sends, want 1", n)
	}
	if n := len(client.SendsTo(3)); n != 1 {
		t.Fatalf("recipient 3 got %d sends, want 1", n)
	}
	if n := len(client.SendsTo(2)); n != 0 {
		t.Fatalf("recipient 2 recorded %d sends despite failure", n)
	}
}

func TestBroadcastUsesSnapshotAtSendTime(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	reg := approvedRegistry(t, 1, 2)
	b := newBroadcaster(t, Config{Workers: 1}, client, reg, nil)

	if err := b.Send(context.Background(), Message{Target: ToAll(), Body: "hello"}); err != nil {
		t.Fatal(err)
	}
	reg.Subscribe("late", 99)
	if n := len(client.SendsTo(99)); n != 0 {
		t.Fatalf("late subscriber received %d sends from earlier broadcast", n)
	}
}

func TestNoSession(t *testing.T) {
	t.Parallel()
	composer := compose.New(nil, logx.Nop())
	router := files.NewRouter(composer, logx.Nop())
	b := New(Config{}, staticProvider{client: nil}, approvedRegistry(t), composer, router, nil, logx.Nop())

	if err := b.Send(context.Background(), Message{Target: ToChat(1), Body: "x"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestSendEchoesToSinkWhenEnabled(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	sink := &memSink{}
	b := newBroadcaster(t, Config{LogToConsole: true}, client, approvedRegistry(t), sink)

	if err := b.Send(context.Background(), Message{Target: ToChat(1), Body: "done :tada:"}); err != nil {
		t.Fatal(err)
	}
	lines := sink.all()
	if len(lines) != 1 || !strings.Contains(lines[0], "🎉") {
		t.Fatalf("sink lines = %v", lines)
	}

	// Disabled flag must silence the echo.
	b.Apply(Config{LogToConsole: false})
	_ = b.Send(context.Background(), Message{Target: ToChat(1), Body: "quiet"})
	if len(sink.all()) != 1 {
		t.Fatal("sink received echo while disabled")
	}
}

func TestSendFileBroadcastReplaysContent(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	reg := approvedRegistry(t, 1, 2, 3)
	b := newBroadcaster(t, Config{Workers: 2}, client, reg, nil)

	err := b.SendFile(context.Background(), FileMessage{
		Target:   ToAll(),
		Content:  strings.NewReader("artifact-bytes"),
		FileName: "app.tar",
		Caption:  "build ${N}",
		Env:      compose.Context{"N": "12"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []int64{1, 2, 3} {
		sends := client.SendsTo(id)
		if len(sends) != 1 {
			t.Fatalf("recipient %d got %d sends", id, len(sends))
		}
		if sends[0].Op != "document" {
			t.Fatalf("recipient %d op = %q, want document", id, sends[0].Op)
		}
		if sends[0].Content != "artifact-bytes" {
			t.Fatalf("recipient %d content = %q", id, sends[0].Content)
		}
		if !strings.Contains(sends[0].Text, "12") {
			t.Fatalf("caption not composed: %q", sends[0].Text)
		}
	}
}

func TestSendFileNilContent(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	b := newBroadcaster(t, Config{}, client, approvedRegistry(t), nil)

	if err := b.SendFile(context.Background(), FileMessage{Target: ToChat(1), FileName: "x.bin"}); err == nil {
		t.Fatal("expected error for nil content")
	}
	if len(client.Sends()) != 0 {
		t.Fatal("send attempted despite missing content")
	}
}

func TestSendFileEchoesSingleTarget(t *testing.T) {
	t.Parallel()
	client := transporttest.New()
	sink := &memSink{}
	b := newBroadcaster(t, Config{LogToConsole: true}, client, approvedRegistry(t), sink)

	err := b.SendFile(context.Background(), FileMessage{
		Target:   ToChat(1),
		Content:  strings.NewReader("bytes"),
		FileName: "report.txt",
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := sink.all()
	if len(lines) != 1 || !strings.Contains(lines[0], "report.txt") {
		t.Fatalf("sink lines = %v, want one echo naming the file", lines)
	}
}

// explodingClient panics instead of returning an error when sending to one
// chat id.
type explodingClient struct {
	*transporttest.FakeClient
	target int64
}

func (c *explodingClient) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if to.ChatID == c.target {
		panic("send exploded")
	}
	return c.FakeClient.SendText(ctx, to, text, opt)
}

func TestBroadcastSurvivesPanicDuringDelivery(t *testing.T) {
	t.Parallel()
	fake := transporttest.New()
	client := &explodingClient{FakeClient: fake, target: 1}
	reg := approvedRegistry(t, 1, 2, 3)
	b := newBroadcaster(t, Config{Workers: 1}, client, reg, nil)

	// Recipient 1 is delivered first (snapshot is ordered by chat id); the
	// single worker must recover and still reach 2 and 3.
	if err := b.Send(context.Background(), Message{Target: ToAll(), Body: "hi"}); err != nil {
		t.Fatalf("broadcast returned error: %v", err)
	}
	for _, id := range []int64{2, 3} {
		if n := len(fake.SendsTo(id)); n != 1 {
			t.Fatalf("recipient %d got %d sends, want 1", id, n)
		}
	}
	if n := len(fake.SendsTo(1)); n != 0 {
		t.Fatalf("panicking recipient recorded %d sends", n)
	}
}
