// Package chat talks to the assistant endpoint of the posts API.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"newstech/pkg/api"
	"newstech/pkg/apierr"

	"github.com/buger/jsonparser"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 20 * time.Second
	DefaultBackoff = 600 * time.Millisecond
	MaxMessageLen  = 2000

	NetworkFailureMessage = "Falha de rede ou tempo esgotado."
	NoReplyMessage        = "Erro ao responder."
)

var (
	ErrEmpty = errors.New("chat: mensagem vazia")
	// ErrSuperseded means a newer message on the same session replaced this one.
	ErrSuperseded = errors.New("chat: substituída por nova mensagem")
)

type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	backoff  time.Duration
	log      *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithTimeout(d time.Duration) Option   { return func(c *Client) { c.timeout = d } }
func WithBackoff(d time.Duration) Option   { return func(c *Client) { c.backoff = d } }
func WithLogger(l *zap.Logger) Option      { return func(c *Client) { c.log = l } }

// NewClient targets baseURL + "/api/chat".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("chat: URL base inválida: " + baseURL)
	}
	c := &Client{
		endpoint: u.JoinPath("/api/chat").String(),
		http:     http.DefaultClient,
		timeout:  DefaultTimeout,
		backoff:  DefaultBackoff,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Clean trims msg and caps it at MaxMessageLen runes.
func Clean(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) > MaxMessageLen {
		msg = string([]rune(msg)[:MaxMessageLen])
	}
	return msg
}

// Ask sends one message and returns the reply. Rate limiting, server errors
// and network failures get one more attempt after the backoff.
func (c *Client) Ask(ctx context.Context, msg string) (string, error) {
	msg = Clean(msg)
	if msg == "" {
		return "", ErrEmpty
	}
	body, err := json.Marshal(map[string]string{"message": msg})
	if err != nil {
		return "", err
	}

	var reply string
	b := retry.WithMaxRetries(1, retry.NewConstant(c.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := c.attempt(ctx, body)
		if err == nil {
			reply = r
			return nil
		}
		if ctx.Err() == nil && retryable(err) {
			c.log.Debug("chat attempt failed, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	return reply, err
}

func retryable(err error) bool {
	var he *apierr.HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	var ne *apierr.NetworkError
	return errors.As(err, &ne)
}

func (c *Client) attempt(parent context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cookie := api.CredentialsFrom(parent); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return "", parent.Err()
		}
		return "", &apierr.NetworkError{Op: "chat", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if parent.Err() != nil {
			return "", parent.Err()
		}
		return "", &apierr.NetworkError{Op: "chat", Err: err}
	}

	serverErr, _ := jsonparser.GetString(data, "error")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &apierr.HTTPError{Op: "chat", Status: resp.StatusCode, Body: string(data), Message: serverErr}
	}
	reply, _ := jsonparser.GetString(data, "reply")
	if strings.TrimSpace(reply) == "" {
		msg := serverErr
		if msg == "" {
			msg = NoReplyMessage
		}
		return "", &apierr.HTTPError{Op: "chat", Status: resp.StatusCode, Body: string(data), Message: msg}
	}
	return reply, nil
}

// ErrorLine is the transcript text for a failed Ask.
func ErrorLine(err error) string {
	var he *apierr.HTTPError
	if errors.As(err, &he) {
		if he.Message != "" {
			return he.Message
		}
		return apierr.Humanize(he.Status)
	}
	if errors.Is(err, ErrEmpty) {
		return "Mensagem vazia."
	}
	return NetworkFailureMessage
}
