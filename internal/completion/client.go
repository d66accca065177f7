// Package completion is the client for an Ollama-compatible chat completion server.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

// =============================================================================
// OLLAMA CHAT CLIENT
// =============================================================================

// ErrNetwork wraps every transport-level failure.
var ErrNetwork = errors.New("completion: network failure")

// maxErrorBody bounds the response excerpt included in status errors.
const maxErrorBody = 512

// ChatMessage is one wire message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a streaming chat request.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Sampling types.Sampling
}

// Options mirrors the server's sampling options. Zero values are omitted.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	Mirostat    int     `json:"mirostat,omitempty"`
	MirostatTau float64 `json:"mirostat_tau,omitempty"`
	MirostatEta float64 `json:"mirostat_eta,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  Options       `json:"options"`
}

// Model is an installed model as reported by the tags endpoint.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Digest     string    `json:"digest,omitempty"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// Client talks to one completion server.
type Client struct {
	baseURL   string
	transport *http.Transport
	// probe bounds the connectivity check; chat streams have no client timeout.
	probe  *http.Client
	stream *http.Client
}

// NewClient creates a client. timeout bounds ListModels only.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		probe:     &http.Client{Timeout: timeout, Transport: transport},
		stream:    &http.Client{Transport: transport},
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// OptionsFrom converts agent sampling settings into wire options.
func OptionsFrom(s types.Sampling) Options {
	return Options{
		Temperature: s.Temperature,
		TopK:        s.TopK,
		TopP:        s.TopP,
		NumCtx:      s.NumCtx,
		NumPredict:  s.NumPredict,
		Mirostat:    s.Mirostat,
		MirostatTau: s.MirostatTau,
		MirostatEta: s.MirostatEta,
	}
}

// ListModels fetches the installed models. Success means the server is reachable.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.probe.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list models: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	logging.TransportDebug("server %s lists %d models", c.baseURL, len(tags.Models))
	return tags.Models, nil
}

// Stream starts a streaming chat request. The returned Stream must be closed.
// Cancelling ctx aborts any blocked read.
func (c *Client) Stream(ctx context.Context, r ChatRequest) (*Stream, error) {
	body, err := json.Marshal(chatRequest{
		Model:    r.Model,
		Messages: r.Messages,
		Stream:   true,
		Options:  OptionsFrom(r.Sampling),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	logging.TransportDebug("chat model=%s messages=%d", r.Model, len(r.Messages))
	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: chat request: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return newStream(ctx, resp.Body), nil
}

func statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: server returned status %d: %s", ErrNetwork, resp.StatusCode, strings.TrimSpace(string(excerpt)))
}
