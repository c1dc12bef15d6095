package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	// Turn-detection modes accepted in hello.turn_detection.
	TurnDetectServerVAD       = "server_vad"
	TurnDetectClientInterrupt = "client_interrupt"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes negotiated session audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloAuth struct {
	AccessToken string `json:"access_token,omitempty"`
}

// ClientHello opens a realtime call session against a bot.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	BotID           string      `json:"bot_id"`
	Auth            *HelloAuth  `json:"auth,omitempty"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
	VoiceID         string      `json:"voice_id,omitempty"`
	TurnDetection   string      `json:"turn_detection,omitempty"`
	PlayPrologue    bool        `json:"play_prologue,omitempty"`
}

// RedactedForLog returns a hello view safe for structured logs.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"bot_id":           h.BotID,
		"audio_in":         h.AudioIn,
		"audio_out":        h.AudioOut,
		"voice_id":         h.VoiceID,
		"turn_detection":   h.TurnDetection,
		"play_prologue":    h.PlayPrologue,
		"has_access_token": h.Auth != nil && strings.TrimSpace(h.Auth.AccessToken) != "",
	}
}

type ClientAudioFrame struct {
	Type        string `json:"type"`
	Seq         int64  `json:"seq,omitempty"`
	TimestampMS *int64 `json:"timestamp_ms,omitempty"`
	DataB64     string `json:"data_b64"`
}

// ClientControl carries session commands: record_start, record_stop,
// set_volume, end_session.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
	// Volume is only meaningful for set_volume (fraction 0..1).
	Volume *float64 `json:"volume,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case "record_start", "record_stop", "end_session":
		case "set_volume":
			if msg.Volume == nil {
				return nil, badRequest("control.volume is required for set_volume", "volume")
			}
			if *msg.Volume < 0 || *msg.Volume > 1 {
				return nil, badRequest("control.volume must be within [0,1]", "volume")
			}
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.BotID) == "" {
		return badRequest("hello.bot_id is required", "bot_id")
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz <= 0 {
		return badRequest("hello.audio_in.sample_rate_hz must be > 0", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels <= 0 {
		return badRequest("hello.audio_in.channels must be > 0", "audio_in.channels")
	}
	if strings.TrimSpace(msg.AudioOut.Encoding) == "" {
		return badRequest("hello.audio_out.encoding is required", "audio_out.encoding")
	}
	if msg.AudioOut.SampleRateHz <= 0 {
		return badRequest("hello.audio_out.sample_rate_hz must be > 0", "audio_out.sample_rate_hz")
	}
	if msg.AudioOut.Channels <= 0 {
		return badRequest("hello.audio_out.channels must be > 0", "audio_out.channels")
	}

	mode := strings.TrimSpace(msg.TurnDetection)
	switch mode {
	case "", TurnDetectServerVAD, TurnDetectClientInterrupt:
		return nil
	default:
		return unsupported("unsupported turn detection mode", "turn_detection")
	}
}

// ServerHelloAck is the connection-established frame.
type ServerHelloAck struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id,omitempty"`
	Close   bool   `json:"close,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerTranscriptCompleted carries a finalized user utterance.
type ServerTranscriptCompleted struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id,omitempty"`
	Text        string `json:"text"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
}

// ServerMessageDelta carries an incremental fragment of assistant text.
type ServerMessageDelta struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Delta     string `json:"delta"`
}

// ServerMessageCompleted finalizes the open assistant message.
type ServerMessageCompleted struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
}

type ServerSpeechStarted struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
}

type ServerSpeechStopped struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
}
