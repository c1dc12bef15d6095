package protocol

import (
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"bot_id":"7372howl",
		"audio_in":{"encoding":"pcm","sample_rate_hz":48000,"channels":1},
		"audio_out":{"encoding":"pcm","sample_rate_hz":24000,"channels":1},
		"turn_detection":"client_interrupt",
		"play_prologue":true
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.TurnDetection != TurnDetectClientInterrupt {
		t.Fatalf("turn_detection=%q", hello.TurnDetection)
	}
	if !hello.PlayPrologue {
		t.Fatal("play_prologue not decoded")
	}
}

func TestDecodeClientMessage_HelloMissingBot(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"audio_in":{"encoding":"pcm","sample_rate_hz":48000,"channels":1},
		"audio_out":{"encoding":"pcm","sample_rate_hz":24000,"channels":1}
	}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatal("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Param != "bot_id" {
		t.Fatalf("param=%q", decErr.Param)
	}
}

func TestValidateHello_RejectsUnknownTurnDetection(t *testing.T) {
	err := ValidateHello(ClientHello{
		Type:            "hello",
		ProtocolVersion: "1",
		BotID:           "7372howl",
		AudioIn:         AudioFormat{Encoding: "pcm", SampleRateHz: 48000, Channels: 1},
		AudioOut:        AudioFormat{Encoding: "pcm", SampleRateHz: 24000, Channels: 1},
		TurnDetection:   "psychic",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "unsupported" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_ControlSetVolume(t *testing.T) {
	raw := []byte(`{"type":"control","op":"set_volume","volume":0.4}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	ctrl := msg.(ClientControl)
	if ctrl.Volume == nil || *ctrl.Volume != 0.4 {
		t.Fatalf("volume=%v", ctrl.Volume)
	}
}

func TestDecodeClientMessage_ControlVolumeOutOfRange(t *testing.T) {
	raw := []byte(`{"type":"control","op":"set_volume","volume":1.5}`)
	if _, err := DecodeClientMessage(raw); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeClientMessage_UnsupportedControlOp(t *testing.T) {
	raw := []byte(`{"type":"control","op":"reboot"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatal("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "unsupported" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_AudioFrameRequiresData(t *testing.T) {
	raw := []byte(`{"type":"audio_frame","seq":3}`)
	if _, err := DecodeClientMessage(raw); err == nil {
		t.Fatal("expected error")
	}
}

func TestClientHelloRedaction(t *testing.T) {
	h := ClientHello{
		Type:            "hello",
		ProtocolVersion: "1",
		BotID:           "7372howl",
		Auth:            &HelloAuth{AccessToken: "pat_secret"},
		AudioIn:         AudioFormat{Encoding: "pcm", SampleRateHz: 48000, Channels: 1},
		AudioOut:        AudioFormat{Encoding: "pcm", SampleRateHz: 24000, Channels: 1},
	}
	redacted := h.RedactedForLog()
	if _, exists := redacted["auth"]; exists {
		t.Fatal("auth must not appear in redacted hello")
	}
	if redacted["has_access_token"] != true {
		t.Fatalf("has_access_token=%v", redacted["has_access_token"])
	}
	for _, v := range redacted {
		if s, ok := v.(string); ok && s == "pat_secret" {
			t.Fatal("token leaked into redacted hello")
		}
	}
}
