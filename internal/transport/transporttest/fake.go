// Package transporttest provides an in-memory bot-API client for tests.
package transporttest

import (
	"context"
	"io"
	"sync"

	"cibot/internal/transport"
)

// Sent records one outbound call.
type Sent struct {
	Op      string // "message", "photo", "video", "audio", "document"
	ChatID  int64
	Text    string // message text or file caption
	Name    string // file name, empty for text sends
	Content string // file bytes, empty for text sends
}

// FakeClient implements transport.Client in memory. Errs maps a chat id to
// the error every send to that chat should return.
type FakeClient struct {
	mu      sync.Mutex
	sent    []Sent
	Errs    map[int64]error
	started bool
	stopped int
	out     chan<- transport.Update
}

func New() *FakeClient { return &FakeClient{Errs: map[int64]error{}} }

func (f *FakeClient) Start(ctx context.Context, out chan<- transport.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.out = out
	return nil
}

func (f *FakeClient) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

// Inject pushes an update as if it arrived from the poll loop.
func (f *FakeClient) Inject(up transport.Update) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out != nil {
		out <- up
	}
}

func (f *FakeClient) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeClient) StopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Sends returns a copy of everything sent so far.
func (f *FakeClient) Sends() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// SendsTo filters recorded sends by chat id.
func (f *FakeClient) SendsTo(chatID int64) []Sent {
	var out []Sent
	for _, s := range f.Sends() {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (f *FakeClient) record(op string, chatID int64, text, name, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, Sent{Op: op, ChatID: chatID, Text: text, Name: name, Content: content})
	return nil
}

func (f *FakeClient) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	return f.record("message", to.ChatID, text, "", "")
}

func (f *FakeClient) SendPhoto(ctx context.Context, to transport.ChatTarget, file transport.File, opt *transport.SendOptions) error {
	return f.record("photo", to.ChatID, file.Caption, file.Name, readAll(file.Reader))
}

func (f *FakeClient) SendVideo(ctx context.Context, to transport.ChatTarget, file transport.File, opt *transport.SendOptions) error {
	return f.record("video", to.ChatID, file.Caption, file.Name, readAll(file.Reader))
}

func (f *FakeClient) SendAudio(ctx context.Context, to transport.ChatTarget, file transport.File, opt *transport.SendOptions) error {
	return f.record("audio", to.ChatID, file.Caption, file.Name, readAll(file.Reader))
}

func (f *FakeClient) SendDocument(ctx context.Context, to transport.ChatTarget, file transport.File, opt *transport.SendOptions) error {
	return f.record("document", to.ChatID, file.Caption, file.Name, readAll(file.Reader))
}

func readAll(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(r)
	return string(b)
}
