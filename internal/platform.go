package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ValidationResult is the platform's verdict on the live configuration.
type ValidationResult struct {
	Valid  bool
	Errors string
}

// Validator checks the live configuration before a rollback is committed.
type Validator interface {
	ValidateConfiguration(ctx context.Context) (*ValidationResult, error)
}

// Reloader asks the platform to pick up changed configuration.
type Reloader interface {
	ReloadComponent(ctx context.Context, name string) error
}

// HomeAssistant talks to the platform's REST API.
type HomeAssistant struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

type HomeAssistantOption func(*HomeAssistant)

func WithHTTPClient(c *http.Client) HomeAssistantOption {
	return func(h *HomeAssistant) { h.client = c }
}

func WithPlatformLogger(logger *slog.Logger) HomeAssistantOption {
	return func(h *HomeAssistant) { h.logger = logger }
}

func NewHomeAssistant(cfg PlatformConfig, opts ...HomeAssistantOption) *HomeAssistant {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := &HomeAssistant{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type checkConfigResponse struct {
	Result string  `json:"result"`
	Errors *string `json:"errors"`
}

func (h *HomeAssistant) ValidateConfiguration(ctx context.Context) (*ValidationResult, error) {
	var resp checkConfigResponse
	if err := h.post(ctx, "/api/config/core/check_config", nil, &resp); err != nil {
		return nil, fmt.Errorf("check config: %w", err)
	}

	res := &ValidationResult{Valid: resp.Result == "valid"}
	if resp.Errors != nil {
		res.Errors = *resp.Errors
	}
	h.logger.Debug("configuration checked", slog.Bool("valid", res.Valid))
	return res, nil
}

// ReloadComponent reloads one integration. "core" reloads the core
// configuration and "all" every reloadable integration.
func (h *HomeAssistant) ReloadComponent(ctx context.Context, name string) error {
	domain, service := reloadService(name)
	if domain == "" {
		return fmt.Errorf("reload: empty component name")
	}
	if err := h.post(ctx, fmt.Sprintf("/api/services/%s/%s", domain, service), map[string]any{}, nil); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	h.logger.Info("component reloaded", slog.String("component", name))
	return nil
}

func reloadService(name string) (domain, service string) {
	switch name = strings.TrimSpace(name); name {
	case "core":
		return "homeassistant", "reload_core_config"
	case "all":
		return "homeassistant", "reload_all"
	}
	return name, "reload"
}

func (h *HomeAssistant) post(ctx context.Context, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
