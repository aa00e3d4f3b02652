// Package inference talks to an OpenAI-compatible API for the two
// extraction calls the pipeline needs: image-to-markdown and audio
// transcription.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
)

// ImagePrompt asks the vision model for the full text of the asset.
const ImagePrompt = "Extract all text from this image. Return comprehensive Markdown that preserves " +
	"headings, lists and tables. Describe non-text content briefly. Return only the Markdown."

// Result is one model answer. Tokens is zero when the API did not report usage.
type Result struct {
	Text   string
	Tokens int64
}

// Extractor is the opaque "extract text from this asset" collaborator.
type Extractor interface {
	DescribeImage(ctx context.Context, imageURL string) (Result, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (Result, error)
}

type Config struct {
	BaseURL            string
	APIKey             string
	VisionModel        string
	TranscriptionModel string
	// Timeout bounds a single call; chunked audio makes several.
	Timeout time.Duration
}

// Client implements Extractor over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type usage struct {
	TotalTokens int64 `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Usage *usage `json:"usage"`
}

func (c *Client) DescribeImage(ctx context.Context, url string) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.VisionModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: ImagePrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: url}},
			},
		}},
	})
	if err != nil {
		return Result{}, err
	}

	var out chatResponse
	if err := c.do(ctx, "/chat/completions", "application/json", bytes.NewReader(body), &out); err != nil {
		return Result{}, err
	}
	if len(out.Choices) == 0 {
		return Result{}, common.NewExtractionError("vision model returned no choices", nil)
	}

	res := Result{Text: out.Choices[0].Message.Content}
	if out.Usage != nil {
		res.Tokens = out.Usage.TotalTokens
	}
	return res, nil
}

func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("model", c.cfg.TranscriptionModel); err != nil {
		return Result{}, err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return Result{}, err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return Result{}, fmt.Errorf("read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	var out transcriptionResponse
	if err := c.do(ctx, "/audio/transcriptions", mw.FormDataContentType(), &buf, &out); err != nil {
		return Result{}, err
	}

	res := Result{Text: out.Text}
	if out.Usage != nil {
		res.Tokens = out.Usage.TotalTokens
	}
	return res, nil
}

// do classifies failures: network errors, 429 and 5xx are transient; any
// other non-2xx is a terminal extraction failure.
func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return common.Transient(fmt.Errorf("inference %s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		err := fmt.Errorf("inference %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return common.Transient(err)
		}
		return common.NewExtractionError("model call failed", err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return common.NewExtractionError("malformed model response", err)
	}
	return nil
}

// EstimateTokens is the fallback when usage is missing: one token per four
// characters of output, rounded up.
func EstimateTokens(text string) int64 {
	n := int64(len(text))
	return (n + 3) / 4
}
