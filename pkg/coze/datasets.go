package coze

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chirpling-ai/chirpling/pkg/core"
)

// DatasetsService manages knowledge bases and their attachment to bots.
type DatasetsService struct {
	client *Client
}

type Dataset struct {
	DatasetID     string `json:"dataset_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DocumentCount int    `json:"doc_count,omitempty"`
}

type DatasetList struct {
	Datasets []Dataset `json:"dataset_list"`
	Total    int       `json:"total_count"`
}

// List pages through the knowledge bases of a space.
func (s *DatasetsService) List(ctx context.Context, spaceID string, page, size int) (*DatasetList, error) {
	if spaceID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("space_id is required", "space_id")
	}
	query := url.Values{"space_id": {spaceID}}
	if page > 0 {
		query.Set("page_num", strconv.Itoa(page))
	}
	if size > 0 {
		query.Set("page_size", strconv.Itoa(size))
	}
	var list DatasetList
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/datasets", query, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Bind attaches a knowledge base to a bot's draft version.
func (s *DatasetsService) Bind(ctx context.Context, botID, datasetID string) error {
	return s.bind(ctx, "/v1/bot/dataset/bind", botID, datasetID)
}

// Unbind detaches a knowledge base from a bot's draft version.
func (s *DatasetsService) Unbind(ctx context.Context, botID, datasetID string) error {
	return s.bind(ctx, "/v1/bot/dataset/unbind", botID, datasetID)
}

func (s *DatasetsService) bind(ctx context.Context, path, botID, datasetID string) error {
	if botID == "" {
		return core.NewInvalidRequestErrorWithParam("bot_id is required", "bot_id")
	}
	if datasetID == "" {
		return core.NewInvalidRequestErrorWithParam("dataset_id is required", "dataset_id")
	}
	req := struct {
		BotID     string `json:"bot_id"`
		DatasetID string `json:"dataset_id"`
	}{BotID: botID, DatasetID: datasetID}
	return s.client.doJSON(ctx, http.MethodPost, path, nil, req, nil)
}
