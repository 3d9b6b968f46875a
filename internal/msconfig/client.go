// Package msconfig implements the ConfigClient component (spec.md §4.2):
// thin REST calls against the Milestone Management Server to list
// cameras and resolve which Recording Server a camera lives behind.
package msconfig

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-resty/resty/v2"

	"github.com/conticomp/xprotect-export/internal/auth"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// restBackoff bounds retries against transient failures reaching the
// Management Server, distinct from the explicit single 401/403 retry
// authedGet performs once the server actually answers.
func restBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(bo, 2)
}

// Camera is the read-only descriptor produced by ConfigClient and
// consumed by Exporter (spec.md §3).
type Camera struct {
	ID                   string `json:"id"`
	DisplayName          string `json:"displayName"`
	Enabled              bool   `json:"enabled"`
	RecordingServerHost  string `json:"-"`
	RecordingServerPort  int    `json:"-"`
}

type cameraDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Enabled     bool   `json:"enabled"`
}

type camerasResponse struct {
	Array []cameraDTO `json:"array"`
}

type recordingServerDTO struct {
	ID         string   `json:"id"`
	HostName   string   `json:"hostName"`
	PortNumber int      `json:"portNumber"`
	Cameras    []string `json:"cameras"`
}

type recordingServersResponse struct {
	Array []recordingServerDTO `json:"array"`
}

// Client is the ConfigClient.
type Client struct {
	resty   *resty.Client
	broker  *auth.Broker
	baseURL string
	logger  servicelog.Logger
}

// New builds a Client. verifyTLS=false enables development mode
// (certificate verification disabled), chosen once at construction per
// spec.md §4.2.
func New(logger servicelog.Logger, broker *auth.Broker, baseURL string, verifyTLS bool, timeout time.Duration) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0) // retries on auth failure are handled explicitly, not blindly by resty

	if !verifyTLS {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return &Client{resty: r, broker: broker, baseURL: baseURL, logger: logger}
}

// authedGetOnce performs a single GET with bounded retry on transient
// network failure, not on any HTTP status — status handling is the
// caller's job so it can apply the 401/403 refresh-and-retry policy.
func (c *Client) authedGetOnce(ctx context.Context, path, bearer string, out interface{}) (*resty.Response, error) {
	var resp *resty.Response
	err := backoff.Retry(func() error {
		r, err := c.resty.R().
			SetContext(ctx).
			SetAuthToken(bearer).
			SetResult(out).
			Get(path)
		if err != nil {
			return fmt.Errorf("config: request to %s failed: %w", path, err)
		}
		resp = r
		return nil
	}, backoff.WithContext(restBackoff(), ctx))
	return resp, err
}

// authedGet performs a GET, retrying exactly once with a forced OAuth
// refresh if the server answers 401/403.
func (c *Client) authedGet(ctx context.Context, path string, out interface{}) error {
	bearer, err := c.broker.OAuthBearer(ctx)
	if err != nil {
		return err
	}
	resp, err := c.authedGetOnce(ctx, path, bearer, out)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		bearer, err = c.broker.RefreshOAuthBearer(ctx)
		if err != nil {
			return err
		}
		resp, err = c.authedGetOnce(ctx, path, bearer, out)
		if err != nil {
			return fmt.Errorf("config: retried request to %s failed: %w", path, err)
		}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("config: %s returned status %d", path, resp.StatusCode())
	}
	return nil
}

// ListCameras returns every camera the Management Server exposes.
func (c *Client) ListCameras(ctx context.Context) ([]Camera, error) {
	var reply camerasResponse
	if err := c.authedGet(ctx, "/api/rest/v1/cameras", &reply); err != nil {
		return nil, err
	}
	cameras := make([]Camera, 0, len(reply.Array))
	for _, dto := range reply.Array {
		cameras = append(cameras, Camera{
			ID:          dto.ID,
			DisplayName: dto.DisplayName,
			Enabled:     dto.Enabled,
		})
	}
	return cameras, nil
}

// ResolveRecorder returns the Recording Server host/port serving the
// given camera, picking the server whose child set contains it — the
// "simpler sufficient implementation" spec.md §4.2 allows in place of
// following relations.parent through the hardware object.
func (c *Client) ResolveRecorder(ctx context.Context, cameraID string) (host string, port int, err error) {
	var reply recordingServersResponse
	if err := c.authedGet(ctx, "/api/rest/v1/recordingServers", &reply); err != nil {
		return "", 0, ErrRecorderUnreachable
	}
	for _, srv := range reply.Array {
		for _, cam := range srv.Cameras {
			if cam == cameraID {
				if srv.HostName == "" {
					return "", 0, ErrRecorderUnreachable
				}
				p := srv.PortNumber
				if p == 0 {
					p = 7563
				}
				return srv.HostName, p, nil
			}
		}
	}
	return "", 0, ErrCameraNotFound
}
