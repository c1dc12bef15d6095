package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chirpling-ai/chirpling/pkg/call"
	"github.com/chirpling-ai/chirpling/pkg/history"
	"github.com/chirpling-ai/chirpling/pkg/live"
)

func testGetenv(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseCallConfig(t *testing.T) {
	cfg, err := parseCallConfig(
		[]string{"-bot", "7372howl", "-turn-detection", "client_interrupt"},
		testGetenv(map[string]string{"CHIRPLING_ACCESS_TOKEN": "pat_sekrit"}),
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.BotID != "7372howl" || cfg.AccessToken != "pat_sekrit" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("base url=%q", cfg.BaseURL)
	}
	if !cfg.PlayPrologue {
		t.Fatal("prologue should default on")
	}
}

func TestParseCallConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing token", []string{"-bot", "7372howl"}, nil},
		{"missing bot", nil, map[string]string{"CHIRPLING_ACCESS_TOKEN": "pat"}},
		{"bad turn detection", []string{"-bot", "b", "-turn-detection", "hold_to_speak"},
			map[string]string{"CHIRPLING_ACCESS_TOKEN": "pat"}},
		{"bad base url", []string{"-bot", "b", "-base-url", "not a url"},
			map[string]string{"CHIRPLING_ACCESS_TOKEN": "pat"}},
		{"base url with creds", []string{"-bot", "b", "-base-url", "https://user:pw@api.example"},
			map[string]string{"CHIRPLING_ACCESS_TOKEN": "pat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCallConfig(tt.args, testGetenv(tt.env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// scriptConn feeds scripted events to the controller under runCall.
type scriptConn struct {
	events chan live.Event

	mu     sync.Mutex
	closed bool
	vols   []float64
}

func newScriptConn() *scriptConn {
	return &scriptConn{events: make(chan live.Event, 16)}
}

func (c *scriptConn) Events() <-chan live.Event { return c.events }
func (c *scriptConn) StartRecord() error        { return nil }
func (c *scriptConn) StopRecord() error         { return nil }
func (c *scriptConn) EndSession() error         { return nil }
func (c *scriptConn) Err() error                { return nil }

func (c *scriptConn) SetPlaybackVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vols = append(c.vols, v)
	return nil
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

type fakeArchiver struct {
	mu   sync.Mutex
	reqs []history.ArchiveRequest
}

func (a *fakeArchiver) Archive(ctx context.Context, req history.ArchiveRequest) (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	return uuid.MustParse("11111111-2222-3333-4444-555555555555"), nil
}

// syncBuffer is a goroutine-safe output sink for runCall tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunCall_SessionFlow(t *testing.T) {
	conn := newScriptConn()
	conn.events <- live.AssistantDeltaEvent{Delta: "Hello"}
	conn.events <- live.AssistantDeltaEvent{Delta: " there!"}
	conn.events <- live.AssistantCompletedEvent{}
	conn.events <- live.UserTranscriptEvent{Text: "Hi"}

	dial := func(ctx context.Context, cfg live.Config) (call.Conn, error) {
		if cfg.BotID != "7372howl" {
			t.Errorf("dialed bot %q", cfg.BotID)
		}
		return conn, nil
	}

	store := &fakeArchiver{}
	cfg := callConfig{
		BaseURL:       defaultBaseURL,
		AccessToken:   "pat_sekrit",
		BotID:         "7372howl",
		TurnDetection: "server_vad",
		ConnectWait:   defaultTimeout,
	}

	inR, inW := io.Pipe()
	out := &syncBuffer{}
	errOut := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runCall(context.Background(), cfg, dial, store, inR, out, errOut)
	}()
	send := func(line string) {
		if _, err := io.WriteString(inW, line+"\n"); err != nil {
			t.Fatalf("write command: %v", err)
		}
	}

	send("/call")
	// The scripted events are buffered before the dial; keep asking for
	// the transcript until the event loop has drained them.
	deadlineWait(t, func() bool {
		send("/transcript")
		return strings.Contains(out.String(), "assistant: Hello there!")
	})
	if !strings.Contains(out.String(), "user: Hi") {
		t.Fatalf("output missing user turn:\n%s", out.String())
	}

	send("/volume 0.5")
	send("/end")
	send("/exit")
	if err := <-done; err != nil {
		t.Fatalf("runCall: %v", err)
	}

	if !strings.Contains(out.String(), "volume set to 0.50") {
		t.Fatalf("output missing volume ack:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "call archived as 11111111-2222-3333-4444-555555555555") {
		t.Fatalf("output missing archive ack:\n%s", out.String())
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.reqs) != 1 {
		t.Fatalf("archive calls=%d", len(store.reqs))
	}
	req := store.reqs[0]
	if req.BotID != "7372howl" || req.SessionID == "" || len(req.Messages) != 2 {
		t.Fatalf("archive req=%+v", req)
	}
}

func TestRunCall_DialFailureStaysUsable(t *testing.T) {
	dial := func(ctx context.Context, cfg live.Config) (call.Conn, error) {
		return nil, context.DeadlineExceeded
	}
	cfg := callConfig{
		BaseURL:       defaultBaseURL,
		AccessToken:   "pat_sekrit",
		BotID:         "7372howl",
		TurnDetection: "server_vad",
		ConnectWait:   defaultTimeout,
	}

	input := "/call\n/status\n/exit\n"
	var out, errOut bytes.Buffer
	err := runCall(context.Background(), cfg, dial, nil, strings.NewReader(input), &out, &errOut)
	if err != nil {
		t.Fatalf("runCall: %v", err)
	}
	if !strings.Contains(out.String(), "state=idle") {
		t.Fatalf("output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "call failed") {
		t.Fatalf("missing failure notice:\n%s", out.String())
	}
}

func TestRunCall_PressToTalkCommands(t *testing.T) {
	conn := newScriptConn()
	dial := func(ctx context.Context, cfg live.Config) (call.Conn, error) {
		return conn, nil
	}
	cfg := callConfig{
		BaseURL:       defaultBaseURL,
		AccessToken:   "pat_sekrit",
		BotID:         "7372howl",
		TurnDetection: "client_interrupt",
		ConnectWait:   defaultTimeout,
	}

	input := "/call\n/press\n/slide 60\n/release\n/exit\n"
	var out, errOut bytes.Buffer
	err := runCall(context.Background(), cfg, dial, nil, strings.NewReader(input), &out, &errOut)
	if err != nil {
		t.Fatalf("runCall: %v", err)
	}
	if !strings.Contains(out.String(), "release to cancel") {
		t.Fatalf("slide did not arm cancel:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "recording canceled") {
		t.Fatalf("release did not cancel:\n%s", out.String())
	}
}

func deadlineWait(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before deadline")
	}
}
