package transport

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

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// HTTPDispatcherConfig configures the room API client.
type HTTPDispatcherConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// HTTPDispatcher sends commands to the room API as JSON POSTs.
type HTTPDispatcher struct {
	cfg        HTTPDispatcherConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPDispatcher creates a dispatcher for the room API at cfg.BaseURL.
func NewHTTPDispatcher(cfg HTTPDispatcherConfig) *HTTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPDispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Component("dispatcher"),
	}
}

func (d *HTTPDispatcher) route(cmd Command) (string, error) {
	room := url.PathEscape(cmd.RoomID)
	switch cmd.Name {
	case CmdSeatStateChange:
		return fmt.Sprintf("%s/api/v1/rooms/%s/seats", d.cfg.BaseURL, room), nil
	case CmdCoHostAction:
		if cmd.UserID == "" {
			return "", fmt.Errorf("%s without target user", cmd.Name)
		}
		return fmt.Sprintf("%s/api/v1/rooms/%s/users/%s/seats", d.cfg.BaseURL, room, url.PathEscape(cmd.UserID)), nil
	case CmdBattleAction:
		return fmt.Sprintf("%s/api/v1/rooms/%s/pk", d.cfg.BaseURL, room), nil
	case CmdLiveJoin:
		return fmt.Sprintf("%s/api/v1/rooms/%s/enter", d.cfg.BaseURL, room), nil
	case CmdLiveLeave:
		return fmt.Sprintf("%s/api/v1/rooms/%s/exit", d.cfg.BaseURL, room), nil
	default:
		return "", fmt.Errorf("unknown command %q", cmd.Name)
	}
}

// retryable marks failures worth another attempt: network errors and 5xx.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Send posts the command, retrying network failures and 5xx responses up to
// Retries more times. Every failure wraps domain.ErrTransport.
func (d *HTTPDispatcher) Send(ctx context.Context, cmd Command) (json.RawMessage, error) {
	target, err := d.route(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	body, err := json.Marshal(cmd.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal payload: %v", domain.ErrTransport, err)
	}

	l := d.logger.With().Str(log.FieldCmd, cmd.Name).Str(log.FieldCommandID, cmd.ID).Str(log.FieldRoomID, cmd.RoomID).Logger()

	var lastErr error
	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.cfg.Backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrTransport, ctx.Err())
			}
		}

		data, err := d.do(ctx, cmd, target, body)
		if err == nil {
			l.Debug().Int("attempt", attempt+1).Msg("command sent")
			return data, nil
		}
		lastErr = err

		var r retryable
		if !errors.As(err, &r) || ctx.Err() != nil {
			break
		}
		l.Warn().Err(err).Int("attempt", attempt+1).Msg("command failed, retrying")
	}

	l.Error().Err(lastErr).Msg("command failed")
	return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransport, cmd.Name, lastErr)
}

func (d *HTTPDispatcher) do(ctx context.Context, cmd Command, target string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", cmd.ID)
	if d.cfg.Token != "" {
		req.Header.Set("token", d.cfg.Token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, retryable{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryable{fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, retryable{fmt.Errorf("room service returned status: %d", resp.StatusCode)}
	}

	var env response.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return nil, fmt.Errorf("room service error (status %d): %s", resp.StatusCode, env.Message())
	}
	return env.Data, nil
}
