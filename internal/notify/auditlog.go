package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AuditLogSink forwards resolution events to an external audit log service that issues
// bearer tokens from an API key (POST /api/v1/auth/login, POST /api/v1/logs).
type AuditLogSink struct {
	BaseURL string
	APIKey  string
	Agent   string
	HTTP    *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type auditLogEntry struct {
	Agent   string         `json:"agent"`
	Action  string         `json:"action"`
	Level   string         `json:"level"`
	Details map[string]any `json:"details"`
}

func (s *AuditLogSink) Notify(ctx context.Context, ev ResolutionEvent) error {
	if s == nil || strings.TrimSpace(s.BaseURL) == "" {
		return nil
	}
	token, err := s.ensureToken(ctx)
	if err != nil {
		return err
	}
	agent := s.Agent
	if agent == "" {
		agent = "agenthub-resolver"
	}
	b, err := json.Marshal(auditLogEntry{
		Agent:  agent,
		Action: "signal_resolved",
		Level:  "info",
		Details: map[string]any{
			"event_id":       ev.EventID,
			"signal_id":      ev.SignalID,
			"strategy_id":    ev.StrategyID,
			"strategy_name":  ev.StrategyName,
			"result":         ev.Result,
			"pnl_bps":        ev.PnLBps,
			"direction":      ev.Direction,
			"entry_value":    ev.EntryValue,
			"resolved_value": ev.ResolvedValue,
			"resolved_at":    ev.ResolvedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base()+"/api/v1/logs", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusUnauthorized {
		s.resetToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("audit log http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// ensureToken logs in when no token is held or it expires within two minutes.
func (s *AuditLogSink) ensureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && (s.expiresAt.IsZero() || time.Until(s.expiresAt) > 2*time.Minute) {
		return s.token, nil
	}
	apiKey := strings.TrimSpace(s.APIKey)
	if apiKey == "" {
		return "", errors.New("audit log api key is empty")
	}
	body, _ := json.Marshal(map[string]string{"api_key": apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base()+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client().Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("audit log login http %d", resp.StatusCode)
	}
	var parsed struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.Token) == "" {
		return "", errors.New("audit log login returned empty token")
	}
	s.token = strings.TrimSpace(parsed.Token)
	s.expiresAt, _ = time.Parse(time.RFC3339, strings.TrimSpace(parsed.ExpiresAt))
	return s.token, nil
}

func (s *AuditLogSink) resetToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *AuditLogSink) base() string {
	return strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
}

func (s *AuditLogSink) client() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}
