package httpapi

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
	"sync"
	"time"

	"github.com/MrEthical07/goOnboard/conversation"
)

// Client calls the API over HTTP and implements [conversation.Backend].
// Tickets returned by the server are remembered per session.
type Client struct {
	base    string
	http    *http.Client
	consent bool

	mu      sync.Mutex
	tickets map[string]string
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithDataConsent sets the consent flag sent when starting sessions.
func WithDataConsent(consent bool) ClientOption {
	return func(c *Client) { c.consent = consent }
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpapi: invalid base url %q", baseURL)
	}
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		tickets: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetTicket registers a ticket obtained elsewhere, for resuming a session
// this client did not start.
func (c *Client) SetTicket(sessionID, ticket string) {
	c.mu.Lock()
	c.tickets[sessionID] = ticket
	c.mu.Unlock()
}

// Ticket returns the ticket held for sessionID.
func (c *Client) Ticket(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tickets[sessionID]
	return t, ok
}

// IssueIdentifier asks the server for a free identifier, or checks proposed.
func (c *Client) IssueIdentifier(ctx context.Context, proposed string) (Response, error) {
	return c.do(ctx, http.MethodPost, "/v1/identifiers", "", identifierRequest{Identifier: proposed})
}

// Reset destroys sessionID and returns the replacement session.
func (c *Client) Reset(ctx context.Context, sessionID string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPost, sessionPath(sessionID, "/reset"), sessionID, nil)
}

func (c *Client) StartSession(ctx context.Context) (conversation.Result, error) {
	return c.result(ctx, http.MethodPost, "/v1/sessions", "", startRequest{DataConsent: c.consent})
}

func (c *Client) Session(ctx context.Context, sessionID string) (conversation.Result, error) {
	return c.result(ctx, http.MethodGet, sessionPath(sessionID, ""), sessionID, nil)
}

func (c *Client) SetName(ctx context.Context, sessionID, name string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPut, sessionPath(sessionID, "/name"), sessionID, nameRequest{Name: name})
}

func (c *Client) SetEmail(ctx context.Context, sessionID, email string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPut, sessionPath(sessionID, "/email"), sessionID, emailRequest{Email: email})
}

func (c *Client) SendCode(ctx context.Context, sessionID string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPost, sessionPath(sessionID, "/verification/send"), sessionID, nil)
}

func (c *Client) ResendCode(ctx context.Context, sessionID string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPost, sessionPath(sessionID, "/verification/resend"), sessionID, nil)
}

func (c *Client) ValidateCode(ctx context.Context, sessionID, code string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPost, sessionPath(sessionID, "/verification/validate"), sessionID, codeRequest{Code: code})
}

func (c *Client) Complete(ctx context.Context, sessionID string) (conversation.Result, error) {
	return c.result(ctx, http.MethodPost, sessionPath(sessionID, "/complete"), sessionID, nil)
}

func sessionPath(sessionID, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(sessionID) + suffix
}

func (c *Client) result(ctx context.Context, method, path, sessionID string, body any) (conversation.Result, error) {
	res, err := c.do(ctx, method, path, sessionID, body)
	if err != nil {
		return conversation.Result{}, err
	}
	return toResult(res), nil
}

func toResult(res Response) conversation.Result {
	out := conversation.Result{
		Outcome:   res.Outcome,
		SessionID: res.SessionID,
		Message:   res.Message,
		Wait:      time.Duration(res.WaitSeconds+res.RetryAfterSeconds) * time.Second,
	}
	if res.Session != nil {
		out.Snapshot = res.Session.Snapshot
		out.AttemptsRemaining = res.Session.AttemptsRemaining
		out.ResendsRemaining = res.Session.ResendsRemaining
	}
	if res.AttemptsRemaining != nil {
		out.AttemptsRemaining = *res.AttemptsRemaining
	}
	if res.ResendsRemaining != nil {
		out.ResendsRemaining = *res.ResendsRemaining
	}
	return out
}

// do performs one request. Any reply carrying a JSON [Response] is returned
// with a nil error whatever its status; only transport failures and
// unreadable replies are errors.
func (c *Client) do(ctx context.Context, method, path, sessionID string, body any) (Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return Response{}, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return Response{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		if token, ok := c.Ticket(sessionID); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	// Without a valid ticket the session is unreachable from this client.
	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Response{Outcome: conversation.OutcomeNotFound, Message: messageFor(conversation.OutcomeNotFound)}, nil
	}

	var res Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return Response{}, fmt.Errorf("httpapi: %s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if res.Outcome == "" {
		return Response{}, errors.New("httpapi: response without outcome")
	}

	if res.Ticket != "" && res.SessionID != "" {
		c.SetTicket(res.SessionID, res.Ticket)
	}
	if sessionID != "" && res.SessionID != "" && res.SessionID != sessionID &&
		(res.Outcome == conversation.OutcomeAttemptsExhausted || res.Outcome == conversation.OutcomeOK) {
		c.forget(sessionID)
	}
	return res, nil
}

func (c *Client) forget(sessionID string) {
	c.mu.Lock()
	delete(c.tickets, sessionID)
	c.mu.Unlock()
}
