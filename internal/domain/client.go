package domain

import (
	"fmt"
	"net/http"
)

// Connection defaults used when a field is left at its zero value.
const (
	DefaultHost = "http://localhost"
	DefaultPort = 8085
)

// HTTPDoer is the HTTP session the Bamboo client sends its requests through.
// *http.Client satisfies it; tests may substitute their own implementation.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Connection holds the parameters used to reach a Bamboo server.
// Host includes the scheme (e.g. "https://bamboo.example.com"); Prefix is the
// context path Bamboo is deployed under, if any.
type Connection struct {
	Host     string
	Port     int
	Prefix   string
	Username string
	Password string
}

// WithDefaults returns a copy of the connection with empty fields replaced by
// DefaultHost and DefaultPort.
func (c Connection) WithDefaults() Connection {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}

// HasCredentials reports whether both a username and a password were supplied.
func (c Connection) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// URL joins host, port, prefix and endpoint as plain strings. Nothing is
// escaped and no separators are inserted.
func (c Connection) URL(endpoint string) string {
	return fmt.Sprintf("%s:%d%s%s", c.Host, c.Port, c.Prefix, endpoint)
}
