package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"
)

const (
	// DefaultTokenURL is the OAuth endpoint service-account assertions are exchanged at.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
)

// Credential is a bearer token together with the project it is valid for.
type Credential struct {
	AccessToken string
	ProjectID   string
}

// TokenSource supplies credentials for the push endpoint.
type TokenSource interface {
	Token(ctx context.Context) (Credential, error)
}

// StaticTokenSource returns a fixed, externally provisioned token.
type StaticTokenSource struct {
	AccessToken string
	ProjectID   string
}

func (s StaticTokenSource) Token(_ context.Context) (Credential, error) {
	if s.AccessToken == "" || s.ProjectID == "" {
		return Credential{}, ErrNoCredentials
	}
	return Credential{AccessToken: s.AccessToken, ProjectID: s.ProjectID}, nil
}

// ServiceAccount is the subset of a service-account key file that is needed
// to mint access tokens.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadServiceAccount reads a service-account key file.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account %s: %w", path, ErrNoCredentials)
	}
	return &sa, nil
}

// ServiceAccountTokenSource mints access tokens with the OAuth 2.0 JWT
// bearer grant and reuses each one until it is about to expire.
type ServiceAccountTokenSource struct {
	projectID string
	src       oauth2.TokenSource
}

// NewServiceAccountTokenSource parses the account key. An empty tokenURL uses
// the account's token_uri or DefaultTokenURL.
func NewServiceAccountTokenSource(account ServiceAccount, tokenURL string) (*ServiceAccountTokenSource, error) {
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey)); err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if tokenURL == "" {
		tokenURL = account.TokenURI
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	conf := &oauthjwt.Config{
		Email:      account.ClientEmail,
		PrivateKey: []byte(account.PrivateKey),
		Scopes:     []string{messagingScope},
		TokenURL:   tokenURL,
	}
	client := &http.Client{Timeout: 10 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	return &ServiceAccountTokenSource{
		projectID: account.ProjectID,
		src:       conf.TokenSource(ctx),
	}, nil
}

func (s *ServiceAccountTokenSource) Token(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	tok, err := s.src.Token()
	if err != nil {
		return Credential{}, fmt.Errorf("exchange assertion: %w", err)
	}
	if tok.AccessToken == "" {
		return Credential{}, fmt.Errorf("token endpoint returned no access token: %w", ErrNoCredentials)
	}
	return Credential{AccessToken: tok.AccessToken, ProjectID: s.projectID}, nil
}
