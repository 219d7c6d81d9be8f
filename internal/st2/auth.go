package st2

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

// refreshMargin is how long before expiry a token is renewed.
const refreshMargin = time.Minute

// Authenticator exchanges username/password for auth tokens and keeps the
// client's token fresh.
type Authenticator struct {
	client   *Client
	authBase string
	username string
	password string
	now      func() time.Time
}

// NewAuthenticator creates an authenticator that installs tokens on client.
func NewAuthenticator(client *Client, authURL, username, password string) *Authenticator {
	return &Authenticator{
		client:   client,
		authBase: strings.TrimRight(authURL, "/"),
		username: username,
		password: password,
		now:      time.Now,
	}
}

// Authenticate requests a new token and installs it on the client.
func (a *Authenticator) Authenticate(ctx context.Context) (*Token, error) {
	ctx, span := tracer.Start(ctx, "st2 auth")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authBase+"/tokens", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("create auth request: %w", err)
	}
	req.SetBasicAuth(a.username, a.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status:    resp.StatusCode,
			Message:   parseErrorBody(body),
			RequestID: resp.Header.Get(headerRequestID),
		}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("auth response carries no token")
	}

	a.client.SetToken(tok.Token)
	slog.Info("st2 token received", "expiry", tok.Expiry)
	return &tok, nil
}

// Run renews tok shortly before each expiry until ctx is done. A failed
// renewal is returned as an error; callers treat it as fatal.
func (a *Authenticator) Run(ctx context.Context, tok *Token) error {
	for {
		wait := a.renewIn(tok)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		slog.Info("st2 token expiring, requesting a new one")
		next, err := a.Authenticate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("refresh token: %w", err)
		}
		tok = next
	}
}

func (a *Authenticator) renewIn(tok *Token) time.Duration {
	if tok == nil || tok.Expiry.IsZero() {
		return 24 * time.Hour
	}
	wait := tok.Expiry.Sub(a.now()) - refreshMargin
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
