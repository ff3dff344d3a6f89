package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deepgram/readme-relay/internal/config"
	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const maxErrorBody = 4 << 10

// StatusError is returned when the upstream answers the streaming request with
// a non-success status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// Service issues streaming chat-completion requests. The response body is
// handed back unread so callers can consume it as it arrives.
type Service struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewService(cfg config.OpenAIConfig, httpClient *http.Client) *Service {
	logger.Info(logger.SERVICE, "Initialising OpenAI service for %s", cfg.BaseURL)

	if httpClient == nil {
		// no client-level timeout, the request context bounds the stream
		httpClient = &http.Client{}
	}

	return &Service{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
	}
}

// OpenStream posts req with streaming enabled and returns the live body.
func (s *Service) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		logger.Error(logger.UPSTREAM, "Chat completion stream rejected: %v", statusErr)
		return nil, statusErr
	}

	return resp.Body, nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp openai.ErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(bytes.TrimSpace(data))
}
