package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/netx"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the server at baseURL. A nil httpClient gets a
// default one with a request timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) CreateUploadURL(ctx context.Context, token, filename, contentType string) (*UploadTicket, error) {
	var out UploadTicket
	err := c.do(ctx, http.MethodPost, "/upload-url", token, map[string]string{
		"filename":    filename,
		"contentType": contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadToPresignedURL PUTs the payload straight to object storage. Any
// failure is transient from the caller's point of view.
func (c *Client) UploadToPresignedURL(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error {
	if err := netx.UploadToPresignedURL(ctx, c.http, uploadURL, body, size, contentType); err != nil {
		return common.Transient(err)
	}
	return nil
}

func (c *Client) RecordUploadComplete(ctx context.Context, token string, in CompleteUpload) (*FileRef, error) {
	var out FileRef
	if err := c.do(ctx, http.MethodPost, "/upload-complete", token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UploadText(ctx context.Context, token, name, content string) (*FileRef, error) {
	var out FileRef
	err := c.do(ctx, http.MethodPost, "/upload-text", token, map[string]string{
		"name":    name,
		"content": content,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStatus(ctx context.Context, token, fileID string) (*FileStatus, error) {
	var out FileStatus
	if err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/status", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Retry(ctx context.Context, token, fileID string) (*FileStatus, error) {
	var out FileStatus
	if err := c.do(ctx, http.MethodPost, "/files/"+url.PathEscape(fileID)+"/retry", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return common.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return common.Transient(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Error == "" {
		eb.Error = strings.TrimSpace(string(raw))
		if eb.Error == "" {
			eb.Error = resp.Status
		}
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = common.ErrUnauthenticated
	case resp.StatusCode == http.StatusForbidden:
		sentinel = common.ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		sentinel = common.ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		sentinel = common.ErrValidation
	case resp.StatusCode == http.StatusPaymentRequired:
		return &common.QuotaExceededError{Remaining: eb.Remaining, Limit: eb.Limit}
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return common.Transient(errors.New(eb.Error))
	default:
		return fmt.Errorf("unexpected status %s: %s", resp.Status, eb.Error)
	}
	return fmt.Errorf("%w: %s", sentinel, eb.Error)
}
