// Package gateway is the client of the Lutrin processing API, which stores
// captured images, runs OCR and text-to-speech, and extracts e-books.
//
// The client never retries. Transport failures wrap ErrUnreachable and
// non-2xx answers surface as *Error carrying the gateway's message.
package gateway

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
	"strings"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/id"
	"github.com/lutrinapp/lutrin/internal/ratelimit"
)

const (
	userAgent = "Lutrin/1.0"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client is a rate-limited gateway API client.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	baseURL *url.URL
	apiKey  string
}

// New creates a gateway client from configuration.
func New(cfg config.GatewayConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway URL %q", cfg.BaseURL)
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RPS, cfg.Burst),
		logger:  logger,
		baseURL: base,
		apiKey:  cfg.APIKey,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// BaseURL returns the gateway root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// resolve turns an API path or a gateway-issued URL into an absolute URL.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// send executes a request with rate limiting and maps non-2xx answers to *Error.
// The caller closes the response body.
func (c *Client) send(ctx context.Context, op, method, ref string, body io.Reader, contentType, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx, op); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	c.logger.Debug("gateway request",
		"op", op,
		"method", method,
		"url", target,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: readErrorMessage(resp)}
	}
	return resp, nil
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, op, method, path, body, contentType, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, out)
}

func decodeJSON(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrUnreachable, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// readErrorMessage extracts message or error from a JSON error body,
// falling back to the status text.
func readErrorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.text() != "" {
		return body.text()
	}
	return http.StatusText(resp.StatusCode)
}

// UploadImage stores a captured image and returns the name the gateway
// assigned to it.
func (c *Client) UploadImage(ctx context.Context, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", id.FileName(".jpg"))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.send(ctx, "upload", http.MethodPost, "upload", &buf, mw.FormDataContentType(), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	if out.ImageFilename == "" {
		return "", fmt.Errorf("%w: missing image_filename", ErrMalformedResponse)
	}
	return out.ImageFilename, nil
}

// RunOCR recognizes the text of a stored image. Blank text is a valid result.
func (c *Client) RunOCR(ctx context.Context, storedImageName, engineID string) (string, error) {
	var out ocrResponse
	err := c.doJSON(ctx, "ocr", http.MethodPost, "ocr", ocrRequest{
		ImageFilename: storedImageName,
		OCREngine:     engineID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// RunTTS synthesizes text and returns the URL of the generated clip.
// Blank text, locally detected or reported by the gateway, yields ErrEmptyText.
func (c *Client) RunTTS(ctx context.Context, text, engineID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	var out ttsResponse
	err := c.doJSON(ctx, "tts", http.MethodPost, "tts", ttsRequest{Text: text, TTSEngine: engineID}, &out)
	if err != nil {
		return "", err
	}

	if out.Success != nil && !*out.Success {
		if isEmptyTextMessage(out.Message) {
			return "", ErrEmptyText
		}
		return "", &Error{Op: "tts", Status: http.StatusOK, Message: out.Message}
	}
	if out.AudioURL == "" {
		return "", fmt.Errorf("%w: missing audio_url", ErrMalformedResponse)
	}
	return out.AudioURL, nil
}

// emptyTextReport is the sentence the gateway's TTS service answers with
// when it was given blank text.
const emptyTextReport = "Le texte fourni est vide"

// isEmptyTextMessage recognizes the gateway's empty-text report and nothing
// else. Other failures must surface as errors.
func isEmptyTextMessage(msg string) bool {
	return strings.HasPrefix(strings.TrimSpace(msg), emptyTextReport)
}

// FetchStaticText returns the content of a fixture text file.
func (c *Client) FetchStaticText(ctx context.Context, name string) (string, error) {
	resp, err := c.send(ctx, "file", http.MethodGet, "file/"+url.PathEscape(name), nil, "", "text/plain")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read text: %w", ErrUnreachable, err)
	}
	return string(data), nil
}

// FetchAudio downloads a generated clip into w so it becomes locally owned.
// audioURL may be absolute or relative to the gateway root.
func (c *Client) FetchAudio(ctx context.Context, audioURL string, w io.Writer) error {
	resp, err := c.send(ctx, "audio", http.MethodGet, audioURL, nil, "", "audio/*")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: download audio: %w", ErrUnreachable, err)
	}
	return nil
}

// Status probes GET /status. Any 2xx answer means the gateway is online.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	resp, err := c.send(ctx, "status", http.MethodGet, "status", nil, "", "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	report := &StatusReport{Status: "online"}
	// The body is informative only; an undecodable one still means online.
	_ = decodeJSON(resp, report)
	return report, nil
}

// AddEpub sends an e-book for text and metadata extraction.
func (c *Client) AddEpub(ctx context.Context, fileName string, r io.Reader) (*EpubResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("epub_file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read e-book: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.send(ctx, "epub", http.MethodPost, "epub/add", &buf, mw.FormDataContentType(), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out EpubResult
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	out.Metadata.Description = htmlToText(out.Metadata.Description)
	if out.Metadata.Authors == nil {
		out.Metadata.Authors = []string{}
	}
	return &out, nil
}
