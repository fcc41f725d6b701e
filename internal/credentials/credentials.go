package credentials

import (
	"context"
	"errors"
	"os"
	"strings"

	"callingest/internal/config"
	"callingest/internal/services"
)

// EnvAccessToken and EnvAPIKey name the environment fallbacks.
const (
	EnvAccessToken = "CALLINGEST_ACCESS_TOKEN"
	EnvAPIKey      = "CALLINGEST_API_KEY"
)

// Credential is the pair presented on every storage request.
type Credential struct {
	AccessToken string
	APIKey      string
}

// Valid reports whether a bearer token is present.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

// Source yields the credential of the active session. Implementations return
// an error wrapping services.ErrConfiguration when no token is available.
type Source interface {
	Credential(ctx context.Context) (Credential, error)
}

// Static returns a fixed credential.
type Static Credential

// Credential implements Source.
func (s Static) Credential(context.Context) (Credential, error) {
	c := Credential(s)
	if !c.Valid() {
		return Credential{}, missing("static credential is empty")
	}
	return c, nil
}

// Env reads the token and api key from environment variables on each call.
type Env struct {
	TokenVar  string
	APIKeyVar string
}

// Credential implements Source.
func (e Env) Credential(context.Context) (Credential, error) {
	tokenVar, keyVar := e.TokenVar, e.APIKeyVar
	if tokenVar == "" {
		tokenVar = EnvAccessToken
	}
	if keyVar == "" {
		keyVar = EnvAPIKey
	}
	c := Credential{
		AccessToken: strings.TrimSpace(os.Getenv(tokenVar)),
		APIKey:      strings.TrimSpace(os.Getenv(keyVar)),
	}
	if !c.Valid() {
		return Credential{}, missing(tokenVar + " is not set")
	}
	return c, nil
}

// File reads the token from a file on each call so rotated tokens are picked up.
type File struct {
	Path   string
	APIKey string
}

// Credential implements Source.
func (f File) Credential(context.Context) (Credential, error) {
	path := strings.TrimSpace(f.Path)
	if path == "" {
		return Credential{}, missing("access token file not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, services.Wrap(services.ErrConfiguration, "auth", "read token file", path, err)
	}
	c := Credential{AccessToken: strings.TrimSpace(string(data)), APIKey: strings.TrimSpace(f.APIKey)}
	if !c.Valid() {
		return Credential{}, missing("access token file " + path + " is empty")
	}
	return c, nil
}

// Chain tries each source in order and returns the first valid credential.
type Chain []Source

// Credential implements Source.
func (c Chain) Credential(ctx context.Context) (Credential, error) {
	var errs []error
	for _, src := range c {
		if src == nil {
			continue
		}
		cred, err := src.Credential(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, services.ErrConfiguration) {
			return Credential{}, err
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Credential{}, missing("no credential source configured")
	}
	return Credential{}, errors.Join(errs...)
}

// FromConfig builds the credential chain for cfg: the inline token (already
// merged with the environment fallback during config load), then the token file.
func FromConfig(cfg *config.Config) Source {
	if cfg == nil {
		return Env{}
	}
	chain := Chain{}
	if strings.TrimSpace(cfg.Auth.AccessToken) != "" {
		chain = append(chain, Static{AccessToken: cfg.Auth.AccessToken, APIKey: cfg.Auth.APIKey})
	}
	if strings.TrimSpace(cfg.Auth.AccessTokenFile) != "" {
		chain = append(chain, File{Path: cfg.Auth.AccessTokenFile, APIKey: cfg.Auth.APIKey})
	}
	if len(chain) == 0 {
		chain = append(chain, Env{})
	}
	return chain
}

func missing(message string) error {
	return services.Wrap(services.ErrConfiguration, "auth", "credential", message, nil)
}
