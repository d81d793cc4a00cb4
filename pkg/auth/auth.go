// Package auth decides which credentials accompany an outgoing request.
package auth

import (
	"net/http"
	"strings"
)

// Authenticator applies credentials to an HTTP request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	BearerAuthType Type = "bearer"
	HostAuthType   Type = "host"
)

// GitHubHosts are the hosts a GitHub token is meant for.
var GitHubHosts = []string{
	"api.github.com",
	"github.com",
	"codeload.github.com",
	"raw.githubusercontent.com",
}

// BearerAuth sends Token in the Authorization header.
type BearerAuth struct {
	Token string
}

// Apply adds the bearer token to the request. An empty token adds nothing.
func (b BearerAuth) Apply(req *http.Request) error {
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }

// HostAuth applies Auth only to requests for one of Hosts, so a token never
// reaches an unrelated server.
type HostAuth struct {
	Hosts []string
	Auth  Authenticator
}

// ForHosts restricts a to requests for hosts. Host names compare case-insensitively
// and without port.
func ForHosts(a Authenticator, hosts ...string) HostAuth {
	return HostAuth{Hosts: hosts, Auth: a}
}

// Apply delegates to the wrapped authenticator when the request host matches.
func (h HostAuth) Apply(req *http.Request) error {
	if h.Auth == nil || req.URL == nil {
		return nil
	}
	host := req.URL.Hostname()
	for _, allowed := range h.Hosts {
		if strings.EqualFold(host, allowed) {
			return h.Auth.Apply(req)
		}
	}
	return nil
}

// Type returns HostAuthType.
func (h HostAuth) Type() Type { return HostAuthType }
