// Package auth implements the AuthBroker component (spec.md §4.1): a
// two-token handshake against Milestone's Identity Provider (OAuth
// password grant) and ServerCommandService (SOAP Login), refreshed
// lazily and serialized behind a single-writer lock — the same shape as
// the teacher's backend.auth, generalized from one bearer token to the
// pair this protocol requires.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/conticomp/xprotect-export/internal/metrics"
	"github.com/conticomp/xprotect-export/internal/servicelog"
	"github.com/conticomp/xprotect-export/internal/xmlutil"
)

// networkBackoff bounds retries against transient network failures
// talking to the IDP or SOAP endpoint. Credential rejections are wrapped
// in a *backoff.PermanentError inside the retried closure so they fail
// fast instead of being retried (spec.md §7 — "none are retried locally
// beyond one refresh attempt"), mirroring the teacher's
// PermanentIfCancel idiom generalized to "permanent unless transient".
func networkBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(bo, 2)
}

// Client is the minimal surface of *http.Client this package depends on,
// matching the teacher's injectable Client interface so tests can stub it.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

const refreshSkew = 60 * time.Second

// Token is an opaque bearer value plus its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t Token) validFor(skew time.Duration) bool {
	return t.Value != "" && time.Until(t.ExpiresAt) > skew
}

// Broker owns the process-wide OAuth and ImageServer tokens.
type Broker struct {
	logger   servicelog.Logger
	client   Client
	baseURL  string
	username string
	password string

	instanceID string

	mu          sync.Mutex
	oauth       Token
	imageServer Token
	soapTTL     time.Duration
}

// New builds a Broker. instanceID is generated once and bound to the
// process lifetime, per spec.md §3.
func New(logger servicelog.Logger, client Client, baseURL, username, password string) *Broker {
	return &Broker{
		logger:     logger,
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		instanceID: uuid.NewString(),
	}
}

// InstanceID returns the process-lifetime SOAP instance identifier.
func (b *Broker) InstanceID() string {
	return b.instanceID
}

// OAuthBearer returns a valid OAuth bearer token, acquiring or refreshing
// it if necessary.
func (b *Broker) OAuthBearer(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oauthLocked(ctx, false)
}

// RefreshOAuthBearer forces a fresh OAuth token acquisition regardless
// of the cached token's remaining validity, for callers that already
// know the cached bearer was rejected (a 401/403 response) and must not
// settle for the same still-unexpired token on retry.
func (b *Broker) RefreshOAuthBearer(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oauthLocked(ctx, true)
}

func (b *Broker) oauthLocked(ctx context.Context, force bool) (string, error) {
	if !force && b.oauth.validFor(refreshSkew) {
		return b.oauth.Value, nil
	}
	tok, err := b.acquireOAuth(ctx)
	if err != nil {
		return "", err
	}
	b.oauth = tok
	metrics.AuthRefreshes.WithLabelValues("oauth").Inc()
	return tok.Value, nil
}

// Do attaches the current OAuth bearer to req and executes it, retrying
// exactly once with a forced refresh if the server answers 401 or 403 —
// the teacher's auth.Do pattern, generalized to OAuth instead of a
// single opaque session token.
func (b *Broker) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	bearer, err := b.OAuthBearer(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	exhaust(resp.Body)
	bearer, err = b.RefreshOAuthBearer(ctx)
	if err != nil {
		return nil, err
	}
	retryReq := req.Clone(ctx)
	retryReq.Header.Set("Authorization", "Bearer "+bearer)
	return b.client.Do(retryReq)
}

// ImageServerToken returns a valid ImageServer session token, performing
// a SOAP Login if none exists or less than refreshSkew of its TTL
// remains. The
// invariant from spec.md §3 holds: an ImageServer token is never issued
// before an unexpired OAuth token exists.
func (b *Broker) ImageServerToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.imageServerLocked(ctx)
}

func (b *Broker) imageServerLocked(ctx context.Context) (string, error) {
	if b.imageServer.validFor(refreshSkew) {
		return b.imageServer.Value, nil
	}
	oauthBearer, err := b.oauthLocked(ctx, false)
	if err != nil {
		return "", err
	}
	tok, ttl, err := b.acquireSoapLogin(ctx, oauthBearer)
	if err != nil {
		return "", err
	}
	b.imageServer = tok
	b.soapTTL = ttl
	metrics.AuthRefreshes.WithLabelValues("imageserver").Inc()
	return tok.Value, nil
}

// RefreshImageServerToken forces a fresh SOAP Login regardless of TTL,
// used by the export worker to inject connectupdate ahead of expiry.
func (b *Broker) RefreshImageServerToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imageServer = Token{}
	return b.imageServerLocked(ctx)
}

// SoapTTL returns the TTL of the last issued ImageServer token.
func (b *Broker) SoapTTL() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.soapTTL
}

func exhaust(body io.ReadCloser) {
	if body != nil {
		io.Copy(io.Discard, body)
		body.Close()
	}
}

type oauthReply struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (b *Broker) acquireOAuth(ctx context.Context) (Token, error) {
	logger := b.logger.With(servicelog.String("url", b.baseURL), servicelog.String("username", b.username))
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", b.username)
	form.Set("password", b.password)
	form.Set("client_id", "GrantValidatorClient")
	encoded := form.Encode()

	var tok Token
	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/API/IDP/connect/token", strings.NewReader(encoded))
		if err != nil {
			return &backoff.PermanentError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := b.client.Do(req)
		if resp != nil {
			defer exhaust(resp.Body)
		}
		if err != nil {
			logger.Error("oauth request failed", servicelog.Error(err))
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			logger.Error("oauth rejected", servicelog.Int("status", resp.StatusCode))
			return &backoff.PermanentError{Err: ErrInvalidCredentials}
		}
		if resp.StatusCode != http.StatusOK {
			logger.Error("oauth unexpected status", servicelog.Int("status", resp.StatusCode))
			return fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
		}
		var reply oauthReply
		if err := readJSON(resp.Body, &reply); err != nil {
			return fmt.Errorf("%w: decoding oauth reply: %v", ErrNetwork, err)
		}
		if reply.AccessToken == "" {
			return &backoff.PermanentError{Err: ErrInvalidCredentials}
		}
		tok = Token{
			Value:     reply.AccessToken,
			ExpiresAt: time.Now().Add(time.Duration(reply.ExpiresIn) * time.Second),
		}
		return nil
	}, backoff.WithContext(networkBackoff(), ctx))
	if err != nil {
		return Token{}, unwrapPermanent(err)
	}
	return tok, nil
}

// unwrapPermanent strips backoff's wrapper so callers see the taxonomy
// error directly instead of *backoff.PermanentError.
func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

const soapLoginEnvelope = `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><Login xmlns="http://videoos.net/2/XProtectCSServerCommand"><instanceId>%s</instanceId><currentToken></currentToken></Login></soap:Body></soap:Envelope>`

func (b *Broker) acquireSoapLogin(ctx context.Context, oauthBearer string) (Token, time.Duration, error) {
	logger := b.logger.With(servicelog.String("url", b.baseURL))
	body := fmt.Sprintf(soapLoginEnvelope, b.instanceID)

	var tok Token
	var ttl time.Duration
	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/ManagementServer/ServerCommandServiceOAuth.svc", bytes.NewBufferString(body))
		if err != nil {
			return &backoff.PermanentError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
		}
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		req.Header.Set("SOAPAction", "http://videoos.net/2/XProtectCSServerCommand/IServerCommandService/Login")
		req.Header.Set("Authorization", "Bearer "+oauthBearer)

		resp, err := b.client.Do(req)
		if resp != nil {
			defer exhaust(resp.Body)
		}
		if err != nil {
			logger.Error("soap login request failed", servicelog.Error(err))
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading soap response: %v", ErrNetwork, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			logger.Error("soap login rejected", servicelog.Int("status", resp.StatusCode))
			return &backoff.PermanentError{Err: ErrSoapLoginFailed}
		}
		tokenStr, ok := xmlutil.Tag(respBody, "Token")
		if !ok || tokenStr == "" {
			logger.Error("soap login missing token")
			return &backoff.PermanentError{Err: ErrSoapLoginFailed}
		}
		parsedTTL := 10 * time.Minute
		if microSecs, ok := xmlutil.Tag(respBody, "MicroSeconds"); ok {
			if v, err := strconv.ParseInt(strings.TrimSpace(microSecs), 10, 64); err == nil && v > 0 {
				parsedTTL = time.Duration(v) * time.Microsecond
			}
		}
		tok = Token{Value: tokenStr, ExpiresAt: time.Now().Add(parsedTTL)}
		ttl = parsedTTL
		return nil
	}, backoff.WithContext(networkBackoff(), ctx))
	if err != nil {
		return Token{}, 0, unwrapPermanent(err)
	}
	return tok, ttl, nil
}
