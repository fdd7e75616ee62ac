// Package http01 validates http-01 challenges by fetching the key
// authorization from the host's well-known challenge path over plain
// HTTP, as per RFC 8555 Section 8.3.
package http01

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
)

const (
	WellKnownPath   = "/.well-known/acme-challenge/"
	DefaultPort     = 80
	maxResponseSize = 4096
	maxRedirects    = 5
)

type Verifier struct {
	client *http.Client
	port   int
}

// NewVerifier creates an http-01 verifier that connects to the given
// port on the identifier's host. Port 80 in production; tests point it
// at a local challenge response server.
func NewVerifier(port int) *Verifier {
	if port <= 0 {
		port = DefaultPort
	}
	return &Verifier{
		port: port,
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (v *Verifier) Type() acme.ChallengeType {
	return acme.ChallengeTypeHTTP01
}

func (v *Verifier) Verify(ctx context.Context, domain, token, keyAuthorization string) error {
	url := fmt.Sprintf("http://%s:%d%s%s", domain, v.port, WellKnownPath, token)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.New(err)
	}
	response, err := v.client.Do(request)
	if err != nil {
		return xerrors.New(err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("http-01: %s returned status %d", url, response.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return xerrors.New(err)
	}
	if strings.TrimSpace(string(body)) != keyAuthorization {
		return challenge.ErrKeyAuthMismatch
	}
	return nil
}
