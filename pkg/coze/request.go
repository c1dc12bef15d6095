package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chirpling-ai/chirpling/pkg/core"
)

// envelope is the canonical response wrapper: code 0 means success, any
// other code carries an API error in msg.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const logIDHeader = "X-Tt-Logid"

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	reqURL := c.url(path, query)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.TransportError{Op: method + " " + path, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &core.TransportError{Op: method + " " + path, URL: reqURL, Err: err}
	}

	logID := resp.Header.Get(logIDHeader)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(resp.StatusCode, respBody, logID)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return apiError(env.Code, env.Msg, logID)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}

	c.logger.Debug("api request", "method", method, "path", path, "log_id", logID)
	return nil
}

// statusError maps a non-2xx HTTP response onto the error taxonomy. The
// body may still carry an envelope with a more specific code and message.
func statusError(status int, body []byte, logID string) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Code != 0 {
		return apiError(env.Code, env.Msg, logID)
	}

	msg := http.StatusText(status)
	e := core.NewAPIError(msg)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e = core.NewAuthenticationError(msg)
	case http.StatusNotFound:
		e = core.NewNotFoundError(msg)
	case http.StatusTooManyRequests:
		e = core.NewRateLimitError(msg)
	case http.StatusBadRequest:
		e = core.NewInvalidRequestError(msg)
	}
	e.Code = strconv.Itoa(status)
	e.LogID = logID
	return e
}

// apiError maps platform error codes onto the taxonomy. The 4100 band is
// authentication, 4101 denied permission, 4200 throttling; everything else
// in the 4000 band is a rejected request.
func apiError(code int, msg, logID string) error {
	if msg == "" {
		msg = "platform error"
	}
	var e *core.Error
	switch {
	case code == 4100 || code == 4101:
		e = core.NewAuthenticationError(msg)
	case code == 4200:
		e = core.NewRateLimitError(msg)
	case code == 4404:
		e = core.NewNotFoundError(msg)
	case code >= 4000 && code < 5000:
		e = core.NewInvalidRequestError(msg)
	default:
		e = core.NewAPIError(msg)
	}
	e.Code = strconv.Itoa(code)
	e.LogID = logID
	return e
}
