package coze

import (
	"context"
	"net/http"
)

// VoicesService lists the speech voices available for call playback.
type VoicesService struct {
	client *Client
}

type Voice struct {
	VoiceID    string `json:"voice_id"`
	Name       string `json:"name"`
	LanguageID string `json:"language_code,omitempty"`
	PreviewURL string `json:"preview_audio_url,omitempty"`
	IsSystem   bool   `json:"is_system_voice,omitempty"`
}

func (s *VoicesService) List(ctx context.Context) ([]Voice, error) {
	var out struct {
		Voices []Voice `json:"voice_list"`
	}
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/audio/voices", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}
