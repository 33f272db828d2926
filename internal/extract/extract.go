// Package extract pulls text and bytes out of message attachments: it fetches
// the attachment from its locator, decodes PDFs and plain text, and runs an
// external OCR command over images.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"phasebot/internal/domain"
	"phasebot/internal/provider"
)

// ErrTooLarge is returned when an attachment exceeds the configured size limit.
var ErrTooLarge = errors.New("attachment exceeds size limit")

const defaultMaxBytes = 20 << 20

// Config configures an Extractor.
type Config struct {
	AuthToken  string // sent as a bearer token on HTTP fetches
	MaxBytes   int64
	Timeout    time.Duration
	OCREnabled bool
	OCRCommand []string // image on stdin, text on stdout
	Client     *http.Client
	Logger     *slog.Logger
}

// Extractor fetches attachment content and derives text from it.
type Extractor struct {
	authToken  string
	maxBytes   int64
	ocrEnabled bool
	ocrCommand []string
	client     *http.Client
	logger     *slog.Logger
}

func New(cfg Config) *Extractor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Client == nil {
		cfg.Client = provider.SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{
		authToken:  cfg.AuthToken,
		maxBytes:   cfg.MaxBytes,
		ocrEnabled: cfg.OCREnabled && len(cfg.OCRCommand) > 0,
		ocrCommand: cfg.OCRCommand,
		client:     cfg.Client,
		logger:     cfg.Logger,
	}
}

// Fetch returns the raw bytes behind a locator. http(s) locators are fetched
// with the configured bearer token; file:// and bare paths are read from disk.
func (e *Extractor) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, fmt.Errorf("empty locator")
	}
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return e.readFile(strings.TrimPrefix(locator, "file://"))
	}

	resp, err := provider.DoWithRetry(ctx, e.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", locator, nil)
		if err != nil {
			return nil, err
		}
		if e.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+e.authToken)
		}
		return req, nil
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", locator, resp.StatusCode)
	}
	return e.readLimited(resp.Body)
}

func (e *Extractor) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()
	return e.readLimited(f)
}

func (e *Extractor) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Document fetches a document attachment and returns its text. PDFs are
// decoded page by page; anything else is treated as UTF-8 text.
func (e *Extractor) Document(ctx context.Context, a *domain.Attachment) (string, error) {
	data, err := e.Fetch(ctx, a.URL)
	if err != nil {
		return "", err
	}
	if a.IsPDF() {
		return PDFText(data)
	}
	return PlainText(data), nil
}

// Image fetches an image attachment and returns its bytes plus OCR text.
// An OCR failure still returns the bytes.
func (e *Extractor) Image(ctx context.Context, a *domain.Attachment) ([]byte, string, error) {
	data, err := e.Fetch(ctx, a.URL)
	if err != nil {
		return nil, "", err
	}
	text, err := e.OCR(ctx, data)
	if err != nil {
		return data, "", err
	}
	return data, text, nil
}

// OCR pipes image bytes through the configured OCR command. It returns an
// empty string when OCR is disabled.
func (e *Extractor) OCR(ctx context.Context, image []byte) (string, error) {
	if !e.ocrEnabled {
		return "", nil
	}
	cmd := exec.CommandContext(ctx, e.ocrCommand[0], e.ocrCommand[1:]...)
	cmd.Stdin = bytes.NewReader(image)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ocr %s: %w: %s", e.ocrCommand[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(PlainText(out)), nil
}

// PlainText decodes data as UTF-8, dropping invalid sequences.
func PlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
