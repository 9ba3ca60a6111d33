// Package api is a client for the noCTF admin API.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/noctfcli/internal/errors"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	VerifySSL bool
	RateLimit float64 // requests per second, 0 = unlimited
	Logger    *slog.Logger

	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
}

// Client talks to one noCTF instance. The bearer token is set once by Login and
// only read afterwards; a Client is used by one goroutine at a time.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	token   string
}

// New creates an unauthenticated client for baseURL.
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
		if !opts.VerifySSL {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			httpClient.Transport = transport
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
}

// Token returns the bearer token set by Login.
func (c *Client) Token() string {
	return c.token
}

// Login exchanges admin credentials for a bearer token.
// noCTF answers 404 for bad credentials, which is reported as an authentication error.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", errors.NewInternal(err)
	}

	var resp envelope[loginResponse]
	err = c.doJSON(ctx, http.MethodPost, "/auth/email/finish", nil, body, false, &resp)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", errors.NewAuthentication("failed to login, login details may be incorrect")
		}
		return "", err
	}
	if resp.Data.Token == "" {
		return "", errors.NewAuthentication("no token in login response")
	}

	c.token = resp.Data.Token
	return c.token, nil
}

// ListChallenges returns all challenges, optionally filtered by hidden status.
func (c *Client) ListChallenges(ctx context.Context, hidden *bool) ([]ChallengeSummary, error) {
	query := url.Values{}
	if hidden != nil {
		query.Set("hidden", strconv.FormatBool(*hidden))
	}

	var resp envelope[[]ChallengeSummary]
	if err := c.doJSON(ctx, http.MethodGet, "/admin/challenges", query, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetChallengeByID fetches the full admin view of one challenge.
func (c *Client) GetChallengeByID(ctx context.Context, id int64) (*Challenge, error) {
	var resp envelope[*Challenge]
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/admin/challenges/%d", id), nil, nil, true, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.NewAPI(fmt.Sprintf("empty challenge response for id %d", id), 0, nil)
	}
	return resp.Data, nil
}

// FindChallenge resolves slug to a remote challenge. A slug that does not exist
// yields an empty Lookup, not an error. With withFiles, metadata for every attachment
// that still exists on the server is fetched too.
func (c *Client) FindChallenge(ctx context.Context, slug string, withFiles bool) (Lookup, error) {
	summaries, err := c.ListChallenges(ctx, nil)
	if err != nil {
		return Lookup{}, err
	}

	var id int64
	found := false
	for _, s := range summaries {
		if s.Slug == slug {
			id, found = s.ID, true
			break
		}
	}
	if !found {
		return Lookup{}, nil
	}

	ch, err := c.GetChallengeByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return Lookup{}, nil
		}
		return Lookup{}, err
	}

	lookup := Lookup{Challenge: ch}
	if !withFiles {
		return lookup, nil
	}

	attachments, err := ch.Files()
	if err != nil {
		return Lookup{}, errors.NewAPI(err.Error(), 0, nil)
	}
	lookup.Files, err = c.GetChallengeFiles(ctx, attachments)
	if err != nil {
		return Lookup{}, err
	}
	return lookup, nil
}

// GetChallenge resolves slug and fails with a not-found error if it does not exist.
func (c *Client) GetChallenge(ctx context.Context, slug string, withFiles bool) (Lookup, error) {
	lookup, err := c.FindChallenge(ctx, slug, withFiles)
	if err != nil {
		return Lookup{}, err
	}
	if !lookup.Found() {
		return Lookup{}, errors.NewNotFound(slug)
	}
	return lookup, nil
}

// GetFile fetches metadata for one uploaded file.
func (c *Client) GetFile(ctx context.Context, id int64) (*ChallengeFile, error) {
	var resp envelope[*ChallengeFile]
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/admin/files/%d", id), nil, nil, true, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.NewAPI(fmt.Sprintf("empty file response for id %d", id), 0, nil)
	}
	return resp.Data, nil
}

// GetChallengeFiles fetches metadata for each attachment, in order.
// Attachments whose file no longer exists are left out.
func (c *Client) GetChallengeFiles(ctx context.Context, attachments []Attachment) ([]ChallengeFile, error) {
	files := make([]ChallengeFile, 0, len(attachments))
	for _, a := range attachments {
		f, err := c.GetFile(ctx, a.ID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				c.logger.Debug("attachment no longer exists", "file_id", a.ID)
				continue
			}
			return nil, err
		}
		files = append(files, *f)
	}
	return files, nil
}

// UploadFile streams one file to POST /admin/files as multipart field "file".
func (c *Client) UploadFile(ctx context.Context, path string) (*ChallengeFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	raw, err := c.do(ctx, http.MethodPost, "/admin/files", nil, pr, mw.FormDataContentType(), true)
	if err != nil {
		return nil, err
	}

	var resp envelope[*ChallengeFile]
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.NewAPI("empty upload response for "+filepath.Base(path), 0, nil)
	}
	return resp.Data, nil
}

// CreateChallenge submits a new challenge.
func (c *Client) CreateChallenge(ctx context.Context, p *Payload) (*Challenge, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var resp envelope[*Challenge]
	if err := c.doJSON(ctx, http.MethodPost, "/admin/challenges", nil, body, true, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return &Challenge{Slug: p.Slug}, nil
	}
	return resp.Data, nil
}

// UpdateChallenge replaces challenge id with p. p.Version must carry the last known
// version; a stale version is rejected with a conflict error. Returns the new version,
// which is version+1 when the server does not report it.
func (c *Client) UpdateChallenge(ctx context.Context, id int64, p *Payload) (int, error) {
	if p.Version == nil {
		return 0, errors.NewInternal(fmt.Errorf("update of challenge %d without version", id))
	}
	body, err := json.Marshal(p)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	var resp envelope[updateResponse]
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/admin/challenges/%d", id), nil, body, true, &resp); err != nil {
		return 0, err
	}
	if resp.Data.Version != nil {
		return *resp.Data.Version, nil
	}
	return *p.Version + 1, nil
}

// DeleteChallenge removes challenge id.
func (c *Client) DeleteChallenge(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/admin/challenges/%d", id), nil, nil, "", true)
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body []byte, auth bool, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		reader = bytes.NewReader(body)
		contentType = "application/json"
	}
	raw, err := c.do(ctx, method, path, query, reader, contentType, auth)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

// do sends one request and maps the response status to the error taxonomy.
// A 204 or empty body returns nil bytes.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, auth bool) ([]byte, error) {
	closeBody := func() {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			closeBody()
			return nil, errors.NewAPI(fmt.Sprintf("request failed: %v", err), 0, nil)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		closeBody()
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewAPI(fmt.Sprintf("request failed: %v", err), 0, nil)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewAPI(fmt.Sprintf("read response: %v", err), resp.StatusCode, nil)
	}
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if err := statusError(resp.StatusCode, path, raw); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return raw, nil
}

// statusError maps HTTP failures: 401 authentication, 404 not found, 409 conflict,
// anything else >= 400 an API error carrying the parsed body.
func statusError(status int, path string, raw []byte) error {
	if status < 400 {
		return nil
	}

	var body map[string]any
	message := fmt.Sprintf("HTTP %d", status)
	if err := json.Unmarshal(raw, &body); err == nil {
		if m, ok := body["message"].(string); ok && m != "" {
			message = m
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		body = map[string]any{"body": text}
	}

	switch status {
	case http.StatusUnauthorized:
		return errors.NewAuthentication("authentication failed")
	case http.StatusNotFound:
		return errors.NewNotFound(path)
	case http.StatusConflict:
		if message == fmt.Sprintf("HTTP %d", status) {
			return errors.NewConflict("resource conflict")
		}
		return errors.NewConflict("resource conflict: " + message)
	}
	return errors.NewAPI(message, status, body)
}

// decode parses a response envelope. Nil raw (empty body) leaves out untouched.
func decode(raw []byte, out any) error {
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewAPI(fmt.Sprintf("failed to parse response: %v", err), 0, nil)
	}
	return nil
}
