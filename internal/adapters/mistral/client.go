package mistral

import (
	"bytes"
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

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

const (
	DefaultBaseURL = "https://api.mistral.ai"
	DefaultModel   = "mistral-ocr-latest"

	maxErrorBody = 512
)

// Client implements ports.Converter on top of the Mistral OCR REST API.
// It never retries; a failed call fails the document.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewClient creates a converter for the given provider settings.
func NewClient(cfg domain.OCRProviderConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
	}
}

// Ready reports a missing API key.
func (c *Client) Ready() error {
	if c.apiKey == "" {
		return &domain.ConfigError{Setting: "MISTRAL_API_KEY", Reason: "no API key configured"}
	}
	return nil
}

// Convert uploads the PDF, resolves a signed URL, runs OCR and writes the
// result under outputDir.
func (c *Client) Convert(ctx context.Context, inputPath, outputDir string) (domain.ConversionResult, error) {
	info, err := os.Stat(inputPath)
	if err != nil || info.IsDir() {
		return domain.ConversionResult{}, &domain.ConversionError{
			Kind:    domain.ConversionFileNotFound,
			Message: fmt.Sprintf("input file does not exist: %s", inputPath),
			Err:     err,
		}
	}
	if c.apiKey == "" {
		return domain.ConversionResult{}, &domain.ConversionError{
			Kind:    domain.ConversionAuthMissing,
			Message: "no API key configured",
		}
	}

	fileID, err := c.uploadFile(ctx, inputPath)
	if err != nil {
		return domain.ConversionResult{}, err
	}
	signedURL, err := c.signedURL(ctx, fileID)
	if err != nil {
		return domain.ConversionResult{}, err
	}
	resp, err := c.process(ctx, signedURL)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	result, err := SaveResults(resp, outputDir)
	if err != nil {
		return domain.ConversionResult{}, &domain.ConversionError{
			Kind:    domain.ConversionUnknown,
			Message: "failed to save OCR results",
			Err:     err,
		}
	}
	return result, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

type signedURLResponse struct {
	URL string `json:"url"`
}

func (c *Client) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &domain.ConversionError{Kind: domain.ConversionFileNotFound, Message: "cannot open input", Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "ocr"); err != nil {
		return "", unknownError("failed to build upload", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", unknownError("failed to build upload", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", unknownError("failed to read input", err)
	}
	if err := mw.Close(); err != nil {
		return "", unknownError("failed to build upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", &body)
	if err != nil {
		return "", unknownError("failed to create request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &domain.ConversionError{Kind: domain.ConversionProviderAPI, Message: "upload returned no file id"}
	}
	return out.ID, nil
}

func (c *Client) signedURL(ctx context.Context, fileID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/files/%s/url?expiry=1", c.baseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", unknownError("failed to create request", err)
	}

	var out signedURLResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", &domain.ConversionError{Kind: domain.ConversionProviderAPI, Message: "signed url response had no url"}
	}
	return out.URL, nil
}

func (c *Client) process(ctx context.Context, documentURL string) (*OCRResponse, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": documentURL,
		},
		"include_image_base64": true,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, unknownError("failed to marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, unknownError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out OCRResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends an authenticated request and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.ConversionError{
			Kind:    domain.ConversionProviderConnection,
			Message: fmt.Sprintf("%s %s failed", req.Method, req.URL.Path),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ConversionError{
			Kind:    domain.ConversionProviderAPI,
			Message: fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &domain.ConversionError{Kind: domain.ConversionProviderConnection, Message: "response read timed out", Err: err}
		}
		return &domain.ConversionError{Kind: domain.ConversionProviderAPI, Message: "failed to decode response", Err: err}
	}
	return nil
}

func unknownError(msg string, err error) error {
	return &domain.ConversionError{Kind: domain.ConversionUnknown, Message: msg, Err: err}
}
