// Package telegram is a minimal Telegram Bot API client covering the calls
// needed to use a channel as blob storage: sendDocument, getFile and the
// file download endpoint.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// DefaultEndpoint is the public Bot API server.
const DefaultEndpoint = "https://api.telegram.org"

// Config configures a Client.
type Config struct {
	Token    string
	ChatID   string
	Endpoint string
	// LocalMode is set when Endpoint is a self-hosted Bot API server started
	// with --local. getFile then returns absolute paths readable from disk.
	LocalMode bool
	// RequestsPerSecond limits outgoing calls; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *logrus.Logger
}

// Client talks to the Bot API on behalf of one bot and one destination chat.
type Client struct {
	token      string
	chatID     string
	endpoint   string
	localMode  bool
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewClient validates cfg and returns a ready client. No network call is made.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "telegram", "bot token is required")
	}
	if cfg.ChatID == "" {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "telegram", "channel id is required")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, vaulterr.New(vaulterr.InvalidInput, "telegram", fmt.Errorf("invalid endpoint: %w", err))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Client{
		token:      cfg.Token,
		chatID:     cfg.ChatID,
		endpoint:   endpoint,
		localMode:  cfg.LocalMode,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetMe checks the bot token and returns the bot's own user record.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getMe"), nil)
	if err != nil {
		return nil, vaulterr.New(vaulterr.InvalidInput, "get_me", err)
	}
	var user User
	if err := c.call(ctx, "getMe", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendDocument uploads doc to the configured chat. The body is streamed, so
// doc.Reader is read exactly once.
func (c *Client) SendDocument(ctx context.Context, doc Document) (*Message, error) {
	if doc.FileName == "" {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "send_document", "document file name is required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeDocumentForm(mw, c.chatID, doc))
	}()
	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendDocument"), pr)
	if err != nil {
		return nil, vaulterr.New(vaulterr.InvalidInput, "send_document", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg Message
	if err := c.call(ctx, "sendDocument", req, &msg); err != nil {
		return nil, err
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return nil, vaulterr.Errorf(vaulterr.RemoteRejected, "send_document", "response message %d carries no document", msg.MessageID)
	}
	return &msg, nil
}

func writeDocumentForm(mw *multipart.Writer, chatID string, doc Document) error {
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if doc.Caption != "" {
		if err := mw.WriteField("caption", doc.Caption); err != nil {
			return err
		}
	}
	// Without this Telegram may convert .mp4 payloads into videos.
	if err := mw.WriteField("disable_content_type_detection", "true"); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("document", doc.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, doc.Reader); err != nil {
		return err
	}
	return mw.Close()
}

// GetFile resolves a file id into a downloadable file handle.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	if fileID == "" {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "get_file", "file id is required")
	}
	form := url.Values{"file_id": {fileID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("getFile"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, vaulterr.New(vaulterr.InvalidInput, "get_file", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var f File
	if err := c.call(ctx, "getFile", req, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, vaulterr.Errorf(vaulterr.RemoteNotFound, "get_file", "file %s has no downloadable path", fileID)
	}
	return &f, nil
}

// DownloadFile streams the contents of f into w.
func (c *Client) DownloadFile(ctx context.Context, f *File, w io.Writer) (int64, error) {
	if c.localMode && filepath.IsAbs(f.FilePath) {
		return c.copyLocal(f, w)
	}

	if err := c.wait(ctx, "download_file"); err != nil {
		return 0, err
	}
	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.endpoint, c.token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, vaulterr.New(vaulterr.InvalidInput, "download_file", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, transportError("download_file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{Method: "download_file", Code: resp.StatusCode, Description: strings.TrimSpace(string(body))}
		return 0, apiErr.classify()
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, vaulterr.New(vaulterr.RemoteTransient, "download_file", fmt.Errorf("failed to read file body: %w", err))
	}
	if f.FileSize > 0 && n != f.FileSize {
		return n, vaulterr.Errorf(vaulterr.RemoteTransient, "download_file", "short body: got %d of %d bytes", n, f.FileSize)
	}
	return n, nil
}

func (c *Client) copyLocal(f *File, w io.Writer) (int64, error) {
	src, err := os.Open(f.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, vaulterr.New(vaulterr.RemoteNotFound, "download_file", err)
		}
		return 0, vaulterr.New(vaulterr.IOError, "download_file", err)
	}
	defer src.Close()

	n, err := io.Copy(w, src)
	if err != nil {
		return n, vaulterr.New(vaulterr.IOError, "download_file", err)
	}
	return n, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.endpoint, c.token, method)
}

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return vaulterr.New(vaulterr.Canceled, op, err)
		}
		return vaulterr.New(vaulterr.RemoteTransient, op, fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

// call performs req and decodes the result field of the API envelope into out.
func (c *Client) call(ctx context.Context, method string, req *http.Request, out interface{}) error {
	if err := c.wait(ctx, method); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		apiErr := &APIError{Method: method, Code: resp.StatusCode, Description: fmt.Sprintf("undecodable response: %v", err)}
		if resp.StatusCode == http.StatusOK {
			apiErr.Code = http.StatusBadGateway
		}
		return apiErr.classify()
	}

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"status":   resp.StatusCode,
		"ok":       envelope.OK,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("telegram call finished")

	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr.classify()
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return vaulterr.New(vaulterr.RemoteTransient, method, fmt.Errorf("failed to decode result: %w", err))
	}
	return nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return vaulterr.New(vaulterr.Canceled, op, err)
	}
	return vaulterr.New(vaulterr.RemoteTransient, op, err)
}
