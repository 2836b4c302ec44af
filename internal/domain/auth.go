package domain

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Credentials stores authentication information for the Bamboo server.
// Supports both basic authentication (username/password) and token authentication.
type Credentials struct {
	Type     AuthType // BasicAuth or TokenAuth
	Username string   // Used for basic auth
	Password string   // Used for basic auth
	Token    string   // Used for token auth
}

// CredentialsFromConnection returns basic credentials when the connection carries
// both a username and a password, and nil otherwise.
func CredentialsFromConnection(conn Connection) *Credentials {
	if !conn.HasCredentials() {
		return nil
	}
	return &Credentials{
		Type:     BasicAuth,
		Username: conn.Username,
		Password: conn.Password,
	}
}

// CredentialsFromAuthConfig converts an AuthConfig to Credentials.
func CredentialsFromAuthConfig(authConfig *AuthConfig) *Credentials {
	if authConfig == nil {
		return nil
	}
	return &Credentials{
		Type:     ParseAuthType(authConfig.Type),
		Username: authConfig.Username,
		Password: authConfig.Password,
		Token:    authConfig.Token,
	}
}

// NewAuthenticatedClient returns an HTTP client that adds the authorization header
// for creds to every request. A nil creds yields an unauthenticated client.
// Returns an error if the credentials are incomplete.
func NewAuthenticatedClient(creds *Credentials) (*http.Client, error) {
	if creds == nil {
		return &http.Client{}, nil
	}

	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: &authenticatedTransport{
			base:        http.DefaultTransport,
			credentials: creds,
		},
	}, nil
}

// ValidateCredentials validates a Credentials object.
func ValidateCredentials(creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("credentials cannot be nil")
	}

	switch creds.Type {
	case BasicAuth:
		if creds.Username == "" {
			return fmt.Errorf("username is required for basic authentication")
		}
		if creds.Password == "" {
			return fmt.Errorf("password is required for basic authentication")
		}
	case TokenAuth:
		if creds.Token == "" {
			return fmt.Errorf("token is required for token authentication")
		}
	default:
		return fmt.Errorf("invalid authentication type: %v", creds.Type)
	}

	return nil
}

// authenticatedTransport is an http.RoundTripper that adds authentication headers.
type authenticatedTransport struct {
	base        http.RoundTripper
	credentials *Credentials
}

// RoundTrip implements http.RoundTripper by adding authentication headers to requests.
func (t *authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())

	switch t.credentials.Type {
	case BasicAuth:
		auth := t.credentials.Username + ":" + t.credentials.Password
		encodedAuth := base64.StdEncoding.EncodeToString([]byte(auth))
		clonedReq.Header.Set("Authorization", "Basic "+encodedAuth)
	case TokenAuth:
		clonedReq.Header.Set("Authorization", "Bearer "+t.credentials.Token)
	}

	return t.base.RoundTrip(clonedReq)
}

// NewConnectionClient returns an HTTP client that authenticates with the
// connection's basic credentials, or an anonymous client when it has none.
func NewConnectionClient(conn Connection) *http.Client {
	// Basic credentials from a connection always carry both fields.
	client, _ := NewAuthenticatedClient(CredentialsFromConnection(conn))
	return client
}
