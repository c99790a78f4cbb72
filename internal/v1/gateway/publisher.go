package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/callwatch/backend/internal/v1/metrics"
	"github.com/callwatch/backend/internal/v1/report"
	"github.com/sony/gobreaker"
)

// HTTPPublisher implements report.Publisher over the chat platform's
// REST API, wrapped in the same gobreaker pattern used for every other
// outbound dependency in this tree.
type HTTPPublisher struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPPublisher constructs an HTTPPublisher targeting baseURL
// (e.g. the chat platform's API root), authenticating with token.
func NewHTTPPublisher(baseURL, token string) *HTTPPublisher {
	st := gobreaker.Settings{
		Name:        "report-publish",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("report-publish").Set(stateVal)
		},
	}
	return &HTTPPublisher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

type embedPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	Elapsed     string `json:"elapsed"`
	History     string `json:"history"`
	Footer      string `json:"footer"`
	Timestamp   string `json:"timestamp"`
}

type sendMessageResponse struct {
	ID string `json:"id"`
}

func toPayload(embed report.Embed) embedPayload {
	return embedPayload{
		Title:       embed.Title,
		Description: embed.Description,
		Start:       embed.Start,
		Elapsed:     embed.Elapsed,
		History:     embed.History,
		Footer:      embed.Footer,
		Timestamp:   embed.Timestamp.UTC().Format(time.RFC3339),
	}
}

func buildMultipart(embed report.Embed, png []byte) (body *bytes.Buffer, contentType string, err error) {
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)

	payloadJSON, err := json.Marshal(struct {
		Embed          embedPayload `json:"embed"`
		SuppressNotify bool         `json:"suppress_notifications"`
	}{Embed: toPayload(embed), SuppressNotify: true})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, "", err
	}

	part, err := w.CreateFormFile("file", "thumbnail.png")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(png); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// SendMessage posts a new report message to channelID.
func (p *HTTPPublisher) SendMessage(ctx context.Context, channelID string, embed report.Embed, png []byte) (string, error) {
	body, contentType, err := buildMultipart(embed, png)
	if err != nil {
		return "", fmt.Errorf("gateway: build send payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", p.baseURL, channelID)
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.doMultipart(ctx, http.MethodPost, url, body, contentType)
	})
	if err != nil {
		return "", p.wrapBreakerErr(err)
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(result.([]byte), &parsed); err != nil {
		return "", fmt.Errorf("gateway: decode send response: %w", err)
	}
	return parsed.ID, nil
}

// EditMessage replaces an existing report message's embed and
// attachment.
func (p *HTTPPublisher) EditMessage(ctx context.Context, channelID, messageID string, embed report.Embed, png []byte) error {
	body, contentType, err := buildMultipart(embed, png)
	if err != nil {
		return fmt.Errorf("gateway: build edit payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages/%s", p.baseURL, channelID, messageID)
	_, err = p.breaker.Execute(func() (interface{}, error) {
		return p.doMultipart(ctx, http.MethodPatch, url, body, contentType)
	})
	if err != nil {
		return p.wrapBreakerErr(err)
	}
	return nil
}

func (p *HTTPPublisher) doMultipart(ctx context.Context, method, url string, body *bytes.Buffer, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bot "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: unexpected status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func (p *HTTPPublisher) wrapBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("report-publish").Inc()
	}
	return fmt.Errorf("gateway: %w", err)
}
