// Package deepgram implements the voice interfaces over Deepgram's REST API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.deepgram.com"

// Client is a thin Deepgram REST client for batch transcription and speech
// synthesis.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// ListenModel is the transcription model (default nova-2).
	ListenModel string
}

// New creates a Client. httpClient may be nil.
func New(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		httpClient:  httpClient,
		ListenModel: "nova-2",
	}
}

// NewWithBaseURL creates a Client against a non-default endpoint.
func NewWithBaseURL(apiKey, baseURL string, httpClient *http.Client) *Client {
	c := New(apiKey, httpClient)
	if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
		c.baseURL = trimmed
	}
	return c
}

// Transcribe converts recorded audio into a transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	params := url.Values{
		"model":        {c.ListenModel},
		"smart_format": {"true"},
		"punctuate":    {"true"},
		"language":     {"en-US"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/listen?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram listen request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("deepgram listen returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode deepgram listen response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("deepgram listen response had no transcript")
	}
	return out.Results.Channels[0].Alternatives[0].Transcript, nil
}

// Synthesize renders text with the given aura voice and returns raw audio
// bytes.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(voice) == "" {
		voice = "aura-asteria-en"
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	params := url.Values{"model": {voice}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speak?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram speak request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("deepgram speak returned %d: %s", resp.StatusCode, raw)
	}
	return io.ReadAll(resp.Body)
}
