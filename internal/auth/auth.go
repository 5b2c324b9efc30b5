// Package auth acquires the bearer token used for every Graph request.
// The exporter only ever sees an opaque string; scopes and account type are
// this package's concern.
package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// TokenProvider supplies a bearer token for Graph requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed, externally acquired token. It backs
// the ONENOTE_ACCESS_TOKEN escape hatch and the tests.
type StaticTokenProvider string

// Token implements TokenProvider.
func (p StaticTokenProvider) Token(context.Context) (string, error) {
	return string(p), nil
}

// signInAttempts bounds retries of the interactive flow itself; a flaky
// network during sign-in should not kill the run outright.
const signInAttempts = 3

// DeviceCodeAuthenticator signs the user in with the OAuth device-code
// flow: it prints a verification URL plus a short code and blocks until the
// user completes sign-in in a browser. The resulting token is cached for
// the lifetime of the process.
type DeviceCodeAuthenticator struct {
	clientID  string
	authority string
	scopes    []string
	logger    *slog.Logger
	out       io.Writer

	token string
}

// NewDeviceCodeAuthenticator creates an authenticator. The verification
// prompt is written to stdout.
func NewDeviceCodeAuthenticator(clientID, authority string, scopes []string, logger *slog.Logger) *DeviceCodeAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceCodeAuthenticator{
		clientID:  clientID,
		authority: authority,
		scopes:    scopes,
		logger:    logger,
		out:       os.Stdout,
	}
}

// Token implements TokenProvider. The first call runs the interactive
// flow; later calls return the cached token.
func (a *DeviceCodeAuthenticator) Token(ctx context.Context) (string, error) {
	if a.token != "" {
		return a.token, nil
	}

	client, err := public.New(a.clientID, public.WithAuthority(a.authority))
	if err != nil {
		return "", fmt.Errorf("creating auth client: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= signInAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := client.AcquireTokenByDeviceCode(ctx, a.scopes)
		if err != nil {
			lastErr = err
			a.logger.Warn("starting device-code flow failed",
				"attempt", attempt, "attempts", signInAttempts, "error", err)
			time.Sleep(2 * time.Second)
			continue
		}

		fmt.Fprintf(a.out, "\n>>> Open %s in a browser\n>>> Enter code: %s\n>>> Waiting for sign-in...\n\n",
			code.Result.VerificationURL, code.Result.UserCode)

		result, err := code.AuthenticationResult(ctx)
		if err != nil {
			lastErr = err
			a.logger.Warn("device-code sign-in failed",
				"attempt", attempt, "attempts", signInAttempts, "error", err)
			continue
		}

		a.token = result.AccessToken
		return a.token, nil
	}

	return "", fmt.Errorf("device sign-in failed after %d attempts: %w", signInAttempts, lastErr)
}
