// Package live implements the realtime call client: a websocket session
// against the platform's voice channel that emits a typed event stream and
// accepts audio/control commands.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chirpling-ai/chirpling/pkg/core"
	"github.com/chirpling-ai/chirpling/pkg/live/protocol"
)

const defaultConnectTimeout = 15 * time.Second

// Config describes the session configuration sent at connect time.
type Config struct {
	// BaseURL is the platform endpoint (http(s) or ws(s) scheme).
	BaseURL     string
	AccessToken string
	BotID       string

	// VoiceID optionally overrides the bot's configured voice.
	VoiceID string

	// TurnDetection selects server_vad or client_interrupt; empty means
	// the platform default (server_vad).
	TurnDetection string

	// PlayPrologue asks the bot to speak its scripted greeting on connect.
	PlayPrologue bool

	// Input defaults to PCM 48kHz mono, output to PCM 24kHz mono.
	AudioIn  protocol.AudioFormat
	AudioOut protocol.AudioFormat
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.AudioIn.Encoding) == "" {
		c.AudioIn = protocol.AudioFormat{Encoding: "pcm", SampleRateHz: 48000, Channels: 1}
	}
	if strings.TrimSpace(c.AudioOut.Encoding) == "" {
		c.AudioOut = protocol.AudioFormat{Encoding: "pcm", SampleRateHz: 24000, Channels: 1}
	}
	return c
}

// Event is an event emitted by Session.Events().
type Event interface {
	eventType() string
}

// ConnectedEvent is emitted when the server acknowledges the session,
// including on a server-initiated reconnect.
type ConnectedEvent struct{ Ack protocol.ServerHelloAck }

func (e ConnectedEvent) eventType() string { return "connected" }

// UserTranscriptEvent carries a finalized user utterance.
type UserTranscriptEvent struct {
	UtteranceID string
	Text        string
	TimestampMS int64
}

func (e UserTranscriptEvent) eventType() string { return "user_transcript" }

// AssistantDeltaEvent carries an incremental fragment of assistant text.
type AssistantDeltaEvent struct {
	MessageID string
	Delta     string
}

func (e AssistantDeltaEvent) eventType() string { return "assistant_delta" }

// AssistantCompletedEvent finalizes the streaming assistant message.
type AssistantCompletedEvent struct{ MessageID string }

func (e AssistantCompletedEvent) eventType() string { return "assistant_completed" }

type SpeechStartedEvent struct{ MessageID string }

func (e SpeechStartedEvent) eventType() string { return "speech_started" }

type SpeechStoppedEvent struct{ MessageID string }

func (e SpeechStoppedEvent) eventType() string { return "speech_stopped" }

// ServerErrorEvent is fatal to the session.
type ServerErrorEvent struct{ Err protocol.ServerError }

func (e ServerErrorEvent) eventType() string { return "error" }

type WarningEvent struct{ Warning protocol.ServerWarning }

func (e WarningEvent) eventType() string { return "warning" }

type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// Session is a live websocket call session.
type Session struct {
	conn *websocket.Conn

	sessionID string

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// SessionID returns the server-assigned session identifier.
func (s *Session) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Events yields session events in transport order.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendAudioFrame sends one PCM frame upstream.
func (s *Session) SendAudioFrame(pcm []byte, seq int64) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	frame := protocol.ClientAudioFrame{
		Type:    "audio_frame",
		Seq:     seq,
		DataB64: base64.StdEncoding.EncodeToString(pcm),
	}
	return s.sendJSON(frame)
}

// StartRecord begins a manual (press-to-talk) recording turn.
func (s *Session) StartRecord() error {
	return s.sendControl("record_start", nil)
}

// StopRecord ends the manual recording turn.
func (s *Session) StopRecord() error {
	return s.sendControl("record_stop", nil)
}

// SetPlaybackVolume adjusts downstream playback volume (fraction 0..1).
func (s *Session) SetPlaybackVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return core.NewInvalidRequestErrorWithParam("volume must be within [0,1]", "volume")
	}
	return s.sendControl("set_volume", &volume)
}

// EndSession requests a graceful session shutdown.
func (s *Session) EndSession() error {
	return s.sendControl("end_session", nil)
}

func (s *Session) sendControl(op string, volume *float64) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	return s.sendJSON(protocol.ClientControl{Type: "control", Op: strings.TrimSpace(op), Volume: volume})
}

func (s *Session) sendJSON(v any) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close closes the websocket session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error (if any).
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, frameErr := decodeTextFrame(data)
		if frameErr != nil {
			s.setErr(frameErr)
			return
		}
		if event == nil {
			continue
		}
		s.emit(event)
		if errEvent, ok := event.(ServerErrorEvent); ok {
			s.setErr(core.NewSessionError(strings.TrimSpace(errEvent.Err.Message), errEvent.Err.Code, errEvent.Err.LogID))
		}
	}
}

func (s *Session) emit(event Event) {
	if event == nil {
		return
	}
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking read loop if caller stops consuming.
	}
}

func decodeTextFrame(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode live frame envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("live frame missing type")
	}

	switch typ {
	case "hello_ack":
		var ack protocol.ServerHelloAck
		if err := json.Unmarshal(data, &ack); err != nil {
			return nil, fmt.Errorf("decode hello_ack: %w", err)
		}
		return ConnectedEvent{Ack: ack}, nil
	case "transcript_completed":
		var msg protocol.ServerTranscriptCompleted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode transcript_completed: %w", err)
		}
		return UserTranscriptEvent{
			UtteranceID: msg.UtteranceID,
			Text:        msg.Text,
			TimestampMS: msg.TimestampMS,
		}, nil
	case "message_delta":
		var msg protocol.ServerMessageDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode message_delta: %w", err)
		}
		return AssistantDeltaEvent{MessageID: msg.MessageID, Delta: msg.Delta}, nil
	case "message_completed":
		var msg protocol.ServerMessageCompleted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode message_completed: %w", err)
		}
		return AssistantCompletedEvent{MessageID: msg.MessageID}, nil
	case "speech_started":
		var msg protocol.ServerSpeechStarted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode speech_started: %w", err)
		}
		return SpeechStartedEvent{MessageID: msg.MessageID}, nil
	case "speech_stopped":
		var msg protocol.ServerSpeechStopped
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode speech_stopped: %w", err)
		}
		return SpeechStoppedEvent{MessageID: msg.MessageID}, nil
	case "error":
		var msg protocol.ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		return ServerErrorEvent{Err: msg}, nil
	case "warning":
		var msg protocol.ServerWarning
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode warning: %w", err)
		}
		return WarningEvent{Warning: msg}, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// Dial opens a realtime call session and waits for the server acknowledgment.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.BotID) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("bot_id is required", "bot_id")
	}

	wsURL, err := websocketEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	hello := protocol.ClientHello{
		Type:            "hello",
		ProtocolVersion: protocol.ProtocolVersion1,
		BotID:           strings.TrimSpace(cfg.BotID),
		AudioIn:         cfg.AudioIn,
		AudioOut:        cfg.AudioOut,
		VoiceID:         strings.TrimSpace(cfg.VoiceID),
		TurnDetection:   strings.TrimSpace(cfg.TurnDetection),
		PlayPrologue:    cfg.PlayPrologue,
	}
	if token := strings.TrimSpace(cfg.AccessToken); token != "" {
		hello.Auth = &protocol.HelloAuth{AccessToken: token}
	}
	if err := protocol.ValidateHello(hello); err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if token := strings.TrimSpace(cfg.AccessToken); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, &core.TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &core.TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame type %d", messageType)
	}

	firstEvent, err := decodeTextFrame(payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch e := firstEvent.(type) {
	case ConnectedEvent:
		session := &Session{
			conn:      conn,
			sessionID: strings.TrimSpace(e.Ack.SessionID),
			events:    make(chan Event, 256),
			done:      make(chan struct{}),
		}
		// Surface the connected event to consumers too: the transcript
		// aggregator keys its reset on it.
		session.emit(e)
		go session.readLoop()
		return session, nil
	case ServerErrorEvent:
		_ = conn.Close()
		return nil, core.NewConnectError(strings.TrimSpace(e.Err.Message))
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live frame type %q", firstEvent.eventType())
	}
}

func websocketEndpoint(baseURL string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "", core.NewInvalidRequestError("base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("base URL must use http(s) or ws(s)")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/call"
	return u.String(), nil
}
