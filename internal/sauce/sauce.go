// Package sauce talks to the Sauce Labs REST API and normalizes its
// job records for the rest of the service.
package sauce

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrProviderUnavailable wraps any transport or auth failure talking to
// Sauce Labs. Callers decide retry policy; the broadcast sweep simply
// waits for the next cycle.
var ErrProviderUnavailable = errors.New("sauce: provider unavailable")

// Credential identifies one tenant's Sauce Labs account.
// AccessKey must never appear in logs or API responses.
type Credential struct {
	Hostname  string `json:"hostname"`
	Username  string `json:"username"`
	AccessKey string `json:"password"`
}

// API is the subset of the Sauce Labs REST surface the service uses.
// *Client implements it; tests substitute fakes.
type API interface {
	ListJobs(ctx context.Context) ([]RawJob, error)
	GetJob(ctx context.Context, id string) (RawJob, error)
	GetJobAssets(ctx context.Context, id string) (Assets, error)
	GetAccountDetails(ctx context.Context) error
	CreatePublicLink(jobID string) string
}

// Client is an authenticated Sauce Labs REST client.
type Client struct {
	cred Credential
	http *http.Client
}

var _ API = (*Client)(nil)

func NewClient(cred Credential) *Client {
	if cred.Hostname == "" {
		cred.Hostname = "saucelabs.com"
	}
	return &Client{
		cred: cred,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Hostname returns the account's API/web hostname.
func (c *Client) Hostname() string { return c.cred.Hostname }

func (c *Client) get(ctx context.Context, path string, out any) error {
	u := url.URL{Scheme: "https", Host: c.cred.Hostname, Path: path}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cred.Username, c.cred.AccessKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: GET %s: %s: %s", ErrProviderUnavailable, path, resp.Status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderUnavailable, path, err)
	}
	return nil
}

// ListJobs fetches the account's recent jobs with full fields.
func (c *Client) ListJobs(ctx context.Context) ([]RawJob, error) {
	var jobs []RawJob
	path := fmt.Sprintf("/rest/v1/%s/jobs", c.cred.Username)
	if err := c.get(ctx, path+"?full=true", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (RawJob, error) {
	var job RawJob
	path := fmt.Sprintf("/rest/v1/%s/jobs/%s", c.cred.Username, id)
	if err := c.get(ctx, path, &job); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) GetJobAssets(ctx context.Context, id string) (Assets, error) {
	var raw rawAssets
	path := fmt.Sprintf("/rest/v1/%s/jobs/%s/assets", c.cred.Username, id)
	if err := c.get(ctx, path, &raw); err != nil {
		return Assets{}, err
	}
	return assetsFrom(raw, c.authToken(id)), nil
}

// assetsFrom maps the provider's asset listing onto the fields the
// cards and dialogs need. The video auth token is only attached when a
// video actually exists.
func assetsFrom(raw rawAssets, videoToken string) Assets {
	a := Assets{
		HasScreenshots: len(raw.Screenshots) > 0,
		HasVideo:       raw.Video != "",
	}
	if a.HasVideo {
		a.AuthToken = videoToken
	}
	return a
}

// GetAccountDetails verifies the credential against the provider.
// Used by the configuration pipeline before anything is persisted.
func (c *Client) GetAccountDetails(ctx context.Context) error {
	path := fmt.Sprintf("/rest/v1/users/%s", c.cred.Username)
	return c.get(ctx, path, nil)
}

// CreatePublicLink builds a shareable job URL carrying an auth token,
// so the embed dialogs work for viewers without Sauce credentials.
// The token is an HMAC-MD5 of the job id keyed by "user:accessKey",
// computed locally; no network call is involved.
func (c *Client) CreatePublicLink(jobID string) string {
	return fmt.Sprintf("https://%s/beta/tests/%s?auth=%s", c.cred.Hostname, jobID, c.authToken(jobID))
}

func (c *Client) authToken(jobID string) string {
	mac := hmac.New(md5.New, []byte(c.cred.Username+":"+c.cred.AccessKey))
	mac.Write([]byte(jobID))
	return hex.EncodeToString(mac.Sum(nil))
}

type rawAssets struct {
	Screenshots []string `json:"screenshots"`
	Video       string   `json:"video"`
}

// Assets describes which extra artifacts exist for a job. In-progress
// jobs frequently have neither.
type Assets struct {
	HasScreenshots bool   `json:"hasScreenshots"`
	HasVideo       bool   `json:"hasVideo"`
	AuthToken      string `json:"videoAuthToken,omitempty"`
}
