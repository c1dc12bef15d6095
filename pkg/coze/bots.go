package coze

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chirpling-ai/chirpling/pkg/core"
)

// BotsService manages bot personas.
type BotsService struct {
	client *Client
}

// PromptInfo is the persona system prompt.
type PromptInfo struct {
	Prompt string `json:"prompt"`
}

// OnboardingInfo configures the greeting shown or spoken on connect.
type OnboardingInfo struct {
	Prologue           string   `json:"prologue,omitempty"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
}

// ModelInfo selects the chat model backing the persona.
type ModelInfo struct {
	ModelID string `json:"model_id"`
}

type Bot struct {
	BotID       string          `json:"bot_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IconURL     string          `json:"icon_url,omitempty"`
	Prompt      *PromptInfo     `json:"prompt_info,omitempty"`
	Onboarding  *OnboardingInfo `json:"onboarding_info,omitempty"`
	Model       *ModelInfo      `json:"model_info,omitempty"`
	VoiceID     string          `json:"voice_id,omitempty"`
	DatasetIDs  []string        `json:"dataset_ids,omitempty"`
	Version     string          `json:"version,omitempty"`
	PublishedAt int64           `json:"publish_time,omitempty"`
}

type CreateBotRequest struct {
	SpaceID     string          `json:"space_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Prompt      *PromptInfo     `json:"prompt_info,omitempty"`
	Onboarding  *OnboardingInfo `json:"onboarding_info,omitempty"`
	Model       *ModelInfo      `json:"model_info,omitempty"`
	VoiceID     string          `json:"voice_id,omitempty"`
}

type UpdateBotRequest struct {
	BotID       string          `json:"bot_id"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Prompt      *PromptInfo     `json:"prompt_info,omitempty"`
	Onboarding  *OnboardingInfo `json:"onboarding_info,omitempty"`
	Model       *ModelInfo      `json:"model_info,omitempty"`
	VoiceID     string          `json:"voice_id,omitempty"`
}

type BotList struct {
	Bots  []Bot `json:"space_bots"`
	Total int   `json:"total"`
}

// Create registers a new bot persona and returns its id.
func (s *BotsService) Create(ctx context.Context, req CreateBotRequest) (string, error) {
	if req.SpaceID == "" {
		return "", core.NewInvalidRequestErrorWithParam("space_id is required", "space_id")
	}
	if req.Name == "" {
		return "", core.NewInvalidRequestErrorWithParam("name is required", "name")
	}
	var out struct {
		BotID string `json:"bot_id"`
	}
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/bot/create", nil, req, &out); err != nil {
		return "", err
	}
	return out.BotID, nil
}

// Update edits the draft version of a bot. Zero-valued fields are left
// untouched server-side.
func (s *BotsService) Update(ctx context.Context, req UpdateBotRequest) error {
	if req.BotID == "" {
		return core.NewInvalidRequestErrorWithParam("bot_id is required", "bot_id")
	}
	return s.client.doJSON(ctx, http.MethodPost, "/v1/bot/update", nil, req, nil)
}

// Get fetches the published configuration of a bot.
func (s *BotsService) Get(ctx context.Context, botID string) (*Bot, error) {
	if botID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("bot_id is required", "bot_id")
	}
	query := url.Values{"bot_id": {botID}}
	var bot Bot
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/bot/get_online_info", query, nil, &bot); err != nil {
		return nil, err
	}
	return &bot, nil
}

// List pages through the published bots of a space. Page numbering starts
// at 1; size 0 uses the server default.
func (s *BotsService) List(ctx context.Context, spaceID string, page, size int) (*BotList, error) {
	if spaceID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("space_id is required", "space_id")
	}
	query := url.Values{"space_id": {spaceID}}
	if page > 0 {
		query.Set("page_index", strconv.Itoa(page))
	}
	if size > 0 {
		query.Set("page_size", strconv.Itoa(size))
	}
	var list BotList
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/space/published_bots_list", query, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Publish pushes the draft version of a bot live on the given connectors.
// It returns the published version.
func (s *BotsService) Publish(ctx context.Context, botID string, connectorIDs ...string) (string, error) {
	if botID == "" {
		return "", core.NewInvalidRequestErrorWithParam("bot_id is required", "bot_id")
	}
	req := struct {
		BotID        string   `json:"bot_id"`
		ConnectorIDs []string `json:"connector_ids,omitempty"`
	}{BotID: botID, ConnectorIDs: connectorIDs}
	var out struct {
		Version string `json:"version"`
	}
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/bot/publish", nil, req, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}
