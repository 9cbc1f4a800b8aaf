package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Client talks to the dialog-flow provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	retryBase  time.Duration
	maxRetries uint64
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// RetryBase is the first backoff delay for retried sends; doubles per
	// attempt. MaxRetries bounds the retried attempts after the first.
	RetryBase  time.Duration
	MaxRetries uint64
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("dialog base url is required")
	}
	if opts.HTTPClient == nil {
		// No overall client timeout: execution streams stay open well past any
		// fixed deadline. Callers bound streams with their context.
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 250 * time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	return &Client{
		baseURL:    base,
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		retryBase:  opts.RetryBase,
		maxRetries: opts.MaxRetries,
	}, nil
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dialog provider returned %d: %s", e.StatusCode, e.Body)
}

// SendMessageRequest posts one user message into a conversation. A nil
// ConversationID starts a new conversation.
type SendMessageRequest struct {
	ConversationID *string  `json:"conversationId"`
	UserMessage    string   `json:"message"`
	Title          string   `json:"title,omitempty"`
	SystemPrompt   string   `json:"systemPrompt,omitempty"`
	ResourceIDs    []string `json:"resourceIds,omitempty"`
}

// SendMessageResponse carries the (possibly fresh) conversation handle.
type SendMessageResponse struct {
	ConversationID string `json:"conversationId"`
}

// SendMessage delivers a user message, retrying server-side (5xx) failures
// with exponential backoff. Client (4xx) errors are returned immediately.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return SendMessageResponse{}, fmt.Errorf("encode send request: %w", err)
	}

	var out SendMessageResponse
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.post(ctx, "/conversations/messages", "application/json", bytes.NewReader(payload))
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.logger.Warn("dialog send failed, will retry", "status", resp.StatusCode)
			return retry.RetryableError(&StatusError{StatusCode: resp.StatusCode, Body: string(body)})
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return SendMessageResponse{}, err
	}
	if strings.TrimSpace(out.ConversationID) == "" {
		return SendMessageResponse{}, fmt.Errorf("dialog provider returned no conversation id")
	}
	return out, nil
}

// UploadResource pushes raw file bytes to the provider and returns the
// resource handle for later attachment.
func (c *Client) UploadResource(ctx context.Context, data []byte, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write upload payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize upload form: %w", err)
	}

	resp, err := c.post(ctx, "/resources", mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out struct {
		ResourceID string `json:"resourceId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.ResourceID == "" {
		return "", fmt.Errorf("dialog provider returned no resource id")
	}
	return out.ResourceID, nil
}

// StreamRequest initiates one execution turn. Exactly one of ExecutionID or
// the (FlowID, ConversationID) pair must be set.
type StreamRequest struct {
	ExecutionID    string `json:"executionId,omitempty"`
	FlowID         string `json:"dialogFlowId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (r StreamRequest) validate() error {
	resumed := r.ExecutionID != ""
	fresh := r.FlowID != "" && r.ConversationID != ""
	if resumed == fresh {
		return fmt.Errorf("exactly one of execution id or flow id + conversation id is required")
	}
	return nil
}

// StreamExecution opens the server-sent event stream for one execution turn.
// The caller owns the returned source and must close it; the provided
// context bounds the whole stream.
func (c *Client) StreamExecution(ctx context.Context, req StreamRequest) (EventSource, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dialog-flows/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq, "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open execution stream: %w", err)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return newEventStream(resp.Body), nil
}

// Jurisdiction is one selectable legal jurisdiction.
type Jurisdiction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// LegalArea is one selectable area of law.
type LegalArea struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Article is a retrieved legal article.
type Article struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Jurisdiction string `json:"jurisdiction"`
}

// Jurisdictions lists the provider's jurisdictions, falling back to a static
// set when the provider is unreachable.
func (c *Client) Jurisdictions(ctx context.Context) []Jurisdiction {
	var out []Jurisdiction
	if err := c.getJSON(ctx, "/jurisdictions", nil, &out); err != nil {
		c.logger.Warn("jurisdiction lookup failed, using defaults", "error", err)
		return []Jurisdiction{
			{ID: "us", Name: "United States", Code: "US"},
			{ID: "uk", Name: "United Kingdom", Code: "UK"},
			{ID: "ca", Name: "Canada", Code: "CA"},
			{ID: "au", Name: "Australia", Code: "AU"},
		}
	}
	return out
}

// LegalAreas lists the legal areas for a jurisdiction, with static defaults
// on failure.
func (c *Client) LegalAreas(ctx context.Context, jurisdiction string) []LegalArea {
	var out []LegalArea
	path := "/jurisdictions/" + url.PathEscape(jurisdiction) + "/legal-areas"
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		c.logger.Warn("legal area lookup failed, using defaults", "jurisdiction", jurisdiction, "error", err)
		return []LegalArea{
			{ID: "criminal", Name: "Criminal Law"},
			{ID: "civil", Name: "Civil Law"},
			{ID: "constitutional", Name: "Constitutional Law"},
			{ID: "administrative", Name: "Administrative Law"},
			{ID: "family", Name: "Family Law"},
			{ID: "commercial", Name: "Commercial Law"},
		}
	}
	return out
}

// SearchArticles queries articles for a jurisdiction and legal area.
func (c *Client) SearchArticles(ctx context.Context, jurisdiction, legalArea, query string) []Article {
	params := url.Values{"jurisdiction": {jurisdiction}, "legal_area": {legalArea}}
	if query != "" {
		params.Set("q", query)
	}
	var out []Article
	if err := c.getJSON(ctx, "/articles", params, &out); err != nil {
		c.logger.Warn("article search failed, using placeholder", "legal_area", legalArea, "error", err)
		return []Article{{
			ID:           "article_1",
			Title:        titleCase(legalArea) + " - Article 1",
			Content:      "Sample article content",
			Jurisdiction: jurisdiction,
		}}
	}
	return out
}

// SearchCaseLaw queries case law; failures yield an empty result.
func (c *Client) SearchCaseLaw(ctx context.Context, jurisdiction, query string, limit int) []Article {
	params := url.Values{"jurisdiction": {jurisdiction}, "q": {query}, "limit": {strconv.Itoa(limit)}}
	var out []Article
	if err := c.getJSON(ctx, "/case-law", params, &out); err != nil {
		c.logger.Warn("case law search failed", "error", err)
		return nil
	}
	return out
}

// LegalContextResult bundles the retrieved framing for a trial.
type LegalContextResult struct {
	Jurisdiction string    `json:"jurisdiction"`
	LegalAreas   []string  `json:"legal_areas"`
	Articles     []Article `json:"relevant_articles"`
	CaseLaw      []Article `json:"relevant_case_law"`
	Summary      string    `json:"summary"`
}

// LegalContext assembles per-area articles (first three each) and related
// case law for a case description.
func (c *Client) LegalContext(ctx context.Context, jurisdiction string, legalAreas []string, caseDescription string) LegalContextResult {
	var articles []Article
	for _, area := range legalAreas {
		found := c.SearchArticles(ctx, jurisdiction, area, "")
		if len(found) > 3 {
			found = found[:3]
		}
		articles = append(articles, found...)
	}
	return LegalContextResult{
		Jurisdiction: jurisdiction,
		LegalAreas:   legalAreas,
		Articles:     articles,
		CaseLaw:      c.SearchCaseLaw(ctx, jurisdiction, caseDescription, 5),
		Summary:      fmt.Sprintf("Legal context for %s in %s", jurisdiction, strings.Join(legalAreas, ", ")),
	}
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, contentType)
	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, "")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
