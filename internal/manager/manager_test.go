package manager_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/internal/flight"
	"github.com/parleychat/parley/internal/generation"
	"github.com/parleychat/parley/internal/manager"
	"github.com/parleychat/parley/internal/model/chat"
	"github.com/parleychat/parley/internal/session"
	"github.com/parleychat/parley/internal/store"
)

// scriptedGenerator returns a canned reply or error, optionally blocking
// until released or aborted.
type scriptedGenerator struct {
	reply string
	err   error
	block chan struct{}

	mu        sync.Mutex
	histories [][]chat.Message
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, history []chat.Message, prompt string, _ float32) (string, error) {
	g.mu.Lock()
	g.histories = append(g.histories, history)
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// recordingSpeaker captures speak/stop calls.
type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	stops  int
}

func (s *recordingSpeaker) Speak(_, text string) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
}

func (s *recordingSpeaker) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *recordingSpeaker) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *recordingSpeaker) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func newManager(t *testing.T, gen *scriptedGenerator) (*manager.Manager, *recordingSpeaker) {
	t.Helper()

	repo, err := session.NewRepository(context.Background(), store.NewMemory())
	if err != nil {
		t.Fatalf("NewRepository err: %v", err)
	}

	speaker := &recordingSpeaker{}
	mgr := manager.New(repo, flight.NewController(), gen, speaker, events.NewHub(), 0.9)
	return mgr, speaker
}

func waitIdle(t *testing.T, mgr *manager.Manager) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for mgr.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("manager never returned to idle")
		}
		time.Sleep(time.Millisecond)
	}
}

func activeLog(t *testing.T, mgr *manager.Manager) []chat.Message {
	t.Helper()

	sess, ok := mgr.Active()
	if !ok {
		t.Fatal("no active session")
	}
	return sess.Messages
}

func TestSendMessageDeliversResponse(t *testing.T) {
	gen := &scriptedGenerator{reply: "Hi there"}
	mgr, speaker := newManager(t, gen)
	ctx := context.Background()

	if err := mgr.SendMessage(ctx, "Hello"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	waitIdle(t, mgr)

	log := activeLog(t, mgr)
	if len(log) != 2 {
		t.Fatalf("expected 2 messages, got %+v", log)
	}
	if log[0] != (chat.Message{Text: "Hello", Sender: chat.SenderUser}) {
		t.Fatalf("unexpected user message: %+v", log[0])
	}
	if log[1] != (chat.Message{Text: "Hi there", Sender: chat.SenderAssistant}) {
		t.Fatalf("unexpected assistant message: %+v", log[1])
	}

	sess, _ := mgr.Active()
	if sess.Title != "Hello..." {
		t.Fatalf("unexpected title: %q", sess.Title)
	}

	if spoken := speaker.spokenTexts(); len(spoken) != 1 || spoken[0] != "Hi there" {
		t.Fatalf("expected the reply spoken, got %+v", spoken)
	}
}

func TestSendMessageRejectsBlankInput(t *testing.T) {
	gen := &scriptedGenerator{reply: "unused"}
	mgr, _ := newManager(t, gen)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := mgr.SendMessage(context.Background(), text); !errors.Is(err, manager.ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage for %q, got %v", text, err)
		}
	}
	if gen.calls() != 0 {
		t.Fatal("blank input must not reach the generator")
	}
	if got := activeLog(t, mgr); len(got) != 0 {
		t.Fatalf("blank input must not mutate the log: %+v", got)
	}
}

func TestSendWhileSendingIsRejected(t *testing.T) {
	gen := &scriptedGenerator{reply: "slow", block: make(chan struct{})}
	mgr, _ := newManager(t, gen)
	ctx := context.Background()

	if err := mgr.SendMessage(ctx, "first"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if err := mgr.SendMessage(ctx, "second"); !errors.Is(err, manager.ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}

	// The rejected send must not have appended its message.
	log := activeLog(t, mgr)
	if len(log) != 1 || log[0].Text != "first" {
		t.Fatalf("unexpected log after rejected send: %+v", log)
	}

	close(gen.block)
	waitIdle(t, mgr)
}

func TestCancelDuringSendAppendsNotice(t *testing.T) {
	gen := &scriptedGenerator{reply: "never", block: make(chan struct{})}
	mgr, _ := newManager(t, gen)
	ctx := context.Background()

	if err := mgr.SendMessage(ctx, "Hello"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	mgr.Cancel()
	waitIdle(t, mgr)

	log := activeLog(t, mgr)
	if len(log) != 2 {
		t.Fatalf("expected user message plus notice, got %+v", log)
	}
	if log[1].Text != manager.InterruptNotice || log[1].Sender != chat.SenderAssistant {
		t.Fatalf("unexpected notice: %+v", log[1])
	}
}

func TestCancelWhileIdleIsNoOp(t *testing.T) {
	gen := &scriptedGenerator{reply: "unused"}
	mgr, _ := newManager(t, gen)

	mgr.Cancel()
	mgr.Cancel()

	if got := activeLog(t, mgr); len(got) != 0 {
		t.Fatalf("idle cancel must not mutate the log: %+v", got)
	}
}

func TestSwitchDuringSendDropsResponseSilently(t *testing.T) {
	release := make(chan struct{})
	gen := &scriptedGenerator{reply: "late answer", block: release}
	mgr, speaker := newManager(t, gen)
	ctx := context.Background()

	first := mgr.ActiveID()
	second, err := mgr.NewChat(ctx)
	if err != nil {
		t.Fatalf("NewChat err: %v", err)
	}
	if _, ok, err := mgr.SwitchTo(ctx, first); err != nil || !ok {
		t.Fatalf("SwitchTo err: ok=%v %v", ok, err)
	}

	if err := mgr.SendMessage(ctx, "A"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if _, ok, err := mgr.SwitchTo(ctx, second.ID); err != nil || !ok {
		t.Fatalf("SwitchTo err: ok=%v %v", ok, err)
	}

	close(release)
	waitIdle(t, mgr)

	firstLog, _ := mgr.Messages(first)
	if len(firstLog) != 1 || firstLog[0].Text != "A" {
		t.Fatalf("origin session must gain no assistant message: %+v", firstLog)
	}
	secondLog, _ := mgr.Messages(second.ID)
	if len(secondLog) != 0 {
		t.Fatalf("other session must be unaffected: %+v", secondLog)
	}
	if spoken := speaker.spokenTexts(); len(spoken) != 0 {
		t.Fatalf("dropped response must not be spoken: %+v", spoken)
	}
}

func TestSwitchSilencesSpeechOutput(t *testing.T) {
	gen := &scriptedGenerator{reply: "unused"}
	mgr, speaker := newManager(t, gen)
	ctx := context.Background()

	first := mgr.ActiveID()
	if _, err := mgr.NewChat(ctx); err != nil {
		t.Fatalf("NewChat err: %v", err)
	}
	if _, ok, err := mgr.SwitchTo(ctx, first); err != nil || !ok {
		t.Fatalf("SwitchTo err: ok=%v %v", ok, err)
	}

	// NewChat and the real switch each stop ongoing speech.
	if speaker.stopCount() != 2 {
		t.Fatalf("expected 2 stops, got %d", speaker.stopCount())
	}
}

func TestServiceErrorAppendsSynthesizedMessage(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("unexpected status code: 500")}
	mgr, speaker := newManager(t, gen)
	ctx := context.Background()

	if err := mgr.SendMessage(ctx, "Hello"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	waitIdle(t, mgr)

	log := activeLog(t, mgr)
	if len(log) != 2 {
		t.Fatalf("expected user message plus failure message, got %+v", log)
	}
	if !strings.Contains(log[1].Text, "generation service error") {
		t.Fatalf("failure message must name the coarse kind: %q", log[1].Text)
	}
	if mgr.InFlight() {
		t.Fatal("slot must be released after a failure")
	}
	if spoken := speaker.spokenTexts(); len(spoken) != 0 {
		t.Fatalf("failures must not be spoken: %+v", spoken)
	}

	// The slot is reusable after an error path.
	gen.err = nil
	gen.reply = "recovered"
	if err := mgr.SendMessage(ctx, "again"); err != nil {
		t.Fatalf("SendMessage after failure err: %v", err)
	}
	waitIdle(t, mgr)
}

func TestHistorySnapshotExcludesInFlightMessage(t *testing.T) {
	gen := &scriptedGenerator{reply: "first answer"}
	mgr, _ := newManager(t, gen)
	ctx := context.Background()

	if err := mgr.SendMessage(ctx, "one"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	waitIdle(t, mgr)

	gen.reply = "second answer"
	if err := mgr.SendMessage(ctx, "two"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	waitIdle(t, mgr)

	gen.mu.Lock()
	defer gen.mu.Unlock()

	if len(gen.histories) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(gen.histories))
	}
	// First call: empty history, prompt carries the message.
	if len(gen.histories[0]) != 0 || gen.prompts[0] != "one" {
		t.Fatalf("unexpected first call: history=%+v prompt=%q", gen.histories[0], gen.prompts[0])
	}
	// Second call: history holds the first exchange but not the new message.
	if len(gen.histories[1]) != 2 || gen.prompts[1] != "two" {
		t.Fatalf("unexpected second call: history=%+v prompt=%q", gen.histories[1], gen.prompts[1])
	}
	for _, msg := range gen.histories[1] {
		if msg.Text == "two" {
			t.Fatal("in-flight message must not appear in the history snapshot")
		}
	}
}

func TestNewChatAbortsInFlightSilently(t *testing.T) {
	gen := &scriptedGenerator{reply: "never", block: make(chan struct{})}
	mgr, _ := newManager(t, gen)
	ctx := context.Background()

	origin := mgr.ActiveID()
	if err := mgr.SendMessage(ctx, "Hello"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	fresh, err := mgr.NewChat(ctx)
	if err != nil {
		t.Fatalf("NewChat err: %v", err)
	}
	waitIdle(t, mgr)

	originLog, _ := mgr.Messages(origin)
	if len(originLog) != 1 {
		t.Fatalf("implicit cancellation must append nothing: %+v", originLog)
	}
	freshLog, _ := mgr.Messages(fresh.ID)
	if len(freshLog) != 0 {
		t.Fatalf("fresh session must start empty: %+v", freshLog)
	}
}

func TestDeleteActiveDropsPendingResponse(t *testing.T) {
	gen := &scriptedGenerator{reply: "never", block: make(chan struct{})}
	mgr, _ := newManager(t, gen)
	ctx := context.Background()

	doomed := mgr.ActiveID()
	if err := mgr.SendMessage(ctx, "Hello"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	if err := mgr.Delete(ctx, doomed); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	waitIdle(t, mgr)

	if _, ok := mgr.Messages(doomed); ok {
		t.Fatal("deleted session must be gone")
	}
	if got := activeLog(t, mgr); len(got) != 0 {
		t.Fatalf("replacement session must be untouched: %+v", got)
	}
}

func TestSendWithoutCredentialsFailsFast(t *testing.T) {
	repo, err := session.NewRepository(context.Background(), store.NewMemory())
	if err != nil {
		t.Fatalf("NewRepository err: %v", err)
	}
	mgr := manager.New(repo, flight.NewController(), generation.Disabled{}, &recordingSpeaker{}, events.NewHub(), 0.9)

	if err := mgr.SendMessage(context.Background(), "Hello"); !errors.Is(err, generation.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if got := activeLog(t, mgr); len(got) != 0 {
		t.Fatalf("missing credentials must not mutate the log: %+v", got)
	}
}

func TestSetTemperatureValidatesRange(t *testing.T) {
	gen := &scriptedGenerator{reply: "unused"}
	mgr, _ := newManager(t, gen)

	if err := mgr.SetTemperature(1.5); !errors.Is(err, manager.ErrTemperatureRange) {
		t.Fatalf("expected ErrTemperatureRange, got %v", err)
	}
	if err := mgr.SetTemperature(-0.1); !errors.Is(err, manager.ErrTemperatureRange) {
		t.Fatalf("expected ErrTemperatureRange, got %v", err)
	}
	if err := mgr.SetTemperature(0.3); err != nil {
		t.Fatalf("SetTemperature err: %v", err)
	}
	if got := mgr.Temperature(); got != 0.3 {
		t.Fatalf("unexpected temperature: %v", got)
	}
}
