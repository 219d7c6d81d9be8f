package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/opsclaw/internal/config"
	"github.com/nextlevelbuilder/opsclaw/internal/st2"
)

// loadConfig reads and validates the config. Warnings are logged.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		slog.Warn("config", "warning", w)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// apiSession is an authenticated API client. auth is nil unless the
// username/password flow is in use.
type apiSession struct {
	client *st2.Client
	auth   *st2.Authenticator
	token  *st2.Token
}

// connectAPI builds the API client and installs credentials by precedence:
// API key, then static token, then a token exchanged for username/password.
// Authentication failure is returned and is fatal.
func connectAPI(ctx context.Context, cfg *config.Config) (*apiSession, error) {
	streamURL, err := cfg.StreamBaseURL()
	if err != nil {
		return nil, err
	}
	client := st2.NewClient(st2.Options{
		APIURL:             cfg.ST2.APIURL,
		StreamURL:          streamURL,
		Timeout:            cfg.RequestTimeout(),
		InsecureSkipVerify: cfg.ST2.InsecureSkipVerify,
	})
	s := &apiSession{client: client}

	switch cfg.Credential() {
	case config.CredentialAPIKey:
		client.SetAPIKey(cfg.ST2.APIKey)
	case config.CredentialToken:
		client.SetToken(cfg.ST2.AuthToken)
	case config.CredentialPassword:
		s.auth = st2.NewAuthenticator(client, cfg.ST2.AuthURL, cfg.ST2.Username, cfg.ST2.Password)
		if s.token, err = s.auth.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	default:
		slog.Warn("no st2 credentials configured, requests are unauthenticated")
	}

	slog.Info("st2 api configured", "api", cfg.ST2.APIURL, "stream", streamURL, "credential", cfg.Credential())
	return s, nil
}
