package garmin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://connect.garmin.com"
	defaultSSOURL    = "https://sso.garmin.com/sso/signin"
	defaultUserAgent = "gcbackup/1.0"

	// listBatchSize is the page size used against the activity list endpoint.
	listBatchSize = 100

	activityListEndpoint  = "/proxy/activitylist-service/activities/search/activities"
	wellnessEndpoint      = "/proxy/download-service/files/wellness/%s"
	legacySessionEndpoint = "/legacy/session"
)

// ErrMissingCredentials is returned by Connect when username or password is empty.
var ErrMissingCredentials = errors.New("missing credentials: username or password not provided")

// ErrNotConnected is returned when the client is used before Connect.
var ErrNotConnected = errors.New("client not connected: call Connect before first use")

// AuthError reports a failure during the SSO login handshake.
type AuthError struct {
	Stage string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError represents a non-tolerated HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// Response is the body and status of a completed request.
type Response struct {
	StatusCode int
	Body       []byte
}

// ClientConfig configures a Client. Zero values fall back to the production
// Garmin Connect endpoints.
type ClientConfig struct {
	Username  string
	Password  string
	UserAgent string
	BaseURL   string
	SSOURL    string
}

// Client is an authenticated Garmin Connect session. The session is a single
// stateful server-side cookie; it is not safe for concurrent requests and the
// tool never issues them.
type Client struct {
	username  string
	password  string
	userAgent string
	baseURL   string
	ssoURL    string

	httpClient *http.Client
	logger     *slog.Logger
	connected  bool
}

// NewClient creates an unconnected client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.SSOURL == "" {
		cfg.SSOURL = defaultSSOURL
	}
	return &Client{
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: cfg.UserAgent,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		ssoURL:    cfg.SSOURL,
		logger:    logger,
	}
}

// authTicketRe extracts the auth ticket URL from the login form response,
// typically of the form:
//
//	https://connect.garmin.com/modern?ticket=ST-0123456-aBCDefgh1iJkLmN5opQ9R-cas
var authTicketRe = regexp.MustCompile(`response_url\s*=\s*"(https:[^"]+)"`)

// Connect performs the SSO login handshake and establishes the session cookie.
func (c *Client) Connect(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return ErrMissingCredentials
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	c.httpClient = &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	if err := c.authenticate(ctx); err != nil {
		c.httpClient = nil
		return err
	}

	c.connected = true
	c.logger.Info("connected to garmin connect", "username", c.username)
	return nil
}

// Close tears down the session. Safe to call on an unconnected client.
func (c *Client) Close() {
	c.httpClient = nil
	c.connected = false
}

// Connected reports whether Connect has completed successfully.
func (c *Client) Connected() bool { return c.connected }

func (c *Client) authenticate(ctx context.Context) error {
	c.logger.Info("authenticating", "username", c.username)

	form := url.Values{
		"username": {c.username},
		"password": {c.password},
		"embed":    {"false"},
	}
	loginURL := c.ssoURL + "?" + url.Values{"service": {c.baseURL + "/modern"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Stage: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Origin", "https://sso.garmin.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Stage: "login", Err: err}
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &AuthError{Stage: "login", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &AuthError{Stage: "login", Err: fmt.Errorf("status %d: did you enter valid credentials?", resp.StatusCode)}
	}

	ticketURL, err := extractAuthTicketURL(string(body))
	if err != nil {
		return &AuthError{Stage: "ticket", Err: err}
	}
	c.logger.Debug("claiming auth ticket", "url", ticketURL)

	resp, err = c.doGet(ctx, ticketURL, nil)
	if err != nil {
		return &AuthError{Stage: "claim", Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &AuthError{Stage: "claim", Err: fmt.Errorf("failed to claim auth ticket %s: status %d", ticketURL, resp.StatusCode)}
	}

	// The old API must be touched once to initiate a legacy session,
	// otherwise certain downloads fail.
	if resp, err := c.doGet(ctx, c.baseURL+legacySessionEndpoint, nil); err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	return nil
}

// extractAuthTicketURL pulls the ticket URL out of the login response HTML.
func extractAuthTicketURL(authResponse string) (string, error) {
	match := authTicketRe.FindStringSubmatch(authResponse)
	if match == nil {
		return "", errors.New("unable to extract auth ticket URL: did you provide a correct username/password?")
	}
	return strings.ReplaceAll(match[1], `\`, ""), nil
}

func (c *Client) doGet(ctx context.Context, rawURL string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("NK", "NT")
	return c.httpClient.Do(req)
}

// Get issues an authenticated GET. Status 200 and any status in tolerate are
// returned as-is; anything else is an *HTTPError. Transport failures are
// returned unwrapped for the caller to treat as fatal.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, tolerate []int) (*Response, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}

	resp, err := c.doGet(ctx, rawURL, params)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}

	if resp.StatusCode == http.StatusOK || statusIn(resp.StatusCode, tolerate) {
		return &Response{StatusCode: resp.StatusCode, Body: body}, nil
	}

	c.logger.Error("request failed", "url", rawURL, "status", resp.StatusCode)
	return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

func statusIn(status int, set []int) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// FetchActivity downloads one activity in the given format. The format's
// configured tolerate set is applied, so a tolerated "no data" status comes
// back as a Response rather than an error.
func (c *Client) FetchActivity(ctx context.Context, activityID int64, format Format) (*Response, error) {
	spec, err := format.spec()
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + fmt.Sprintf(spec.endpoint, activityID)
	resp, err := c.Get(ctx, endpoint, nil, spec.tolerate)
	if err != nil {
		return nil, fmt.Errorf("fetching %s for activity %d: %w", spec.name, activityID, err)
	}
	return resp, nil
}

// FetchActivitySummary fetches the summary document for one activity and
// parses it, including its timezone-qualified start time.
func (c *Client) FetchActivitySummary(ctx context.Context, activityID int64) (Activity, error) {
	endpoint := c.baseURL + fmt.Sprintf(formatSpecs[FormatSummary].endpoint, activityID)
	resp, err := c.Get(ctx, endpoint, nil, nil)
	if err != nil {
		return Activity{}, fmt.Errorf("fetching summary for activity %d: %w", activityID, err)
	}
	return parseActivitySummary(activityID, resp.Body)
}

// ListActivities pages through the full activity history, in batches of
// listBatchSize, until the service returns an empty batch.
func (c *Client) ListActivities(ctx context.Context) ([]Activity, error) {
	var activities []Activity
	for start := 0; ; start += listBatchSize {
		params := url.Values{
			"start": {strconv.Itoa(start)},
			"limit": {strconv.Itoa(listBatchSize)},
		}
		resp, err := c.Get(ctx, c.baseURL+activityListEndpoint, params, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching activities %d to %d: %w", start, start+listBatchSize-1, err)
		}

		batch, err := parseActivityList(resp.Body)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		activities = append(activities, batch...)
	}
	return activities, nil
}

// FetchWellness downloads the daily wellness file for the given date.
// 404 is tolerated: not every day has wellness data.
func (c *Client) FetchWellness(ctx context.Context, date time.Time) (*Response, error) {
	endpoint := c.baseURL + fmt.Sprintf(wellnessEndpoint, date.Format("2006-01-02"))
	resp, err := c.Get(ctx, endpoint, nil, []int{404})
	if err != nil {
		return nil, fmt.Errorf("fetching wellness data for %s: %w", date.Format("2006-01-02"), err)
	}
	return resp, nil
}
