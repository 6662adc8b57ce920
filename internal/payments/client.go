// Package payments wraps the external payment processor's HTTP API.
// Every call is network-bound and carries a bounded timeout; callers
// treat a timeout as a retryable failure of that specific step, not
// of their whole flow.
package payments

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gatherly/gatherly/internal/repository"
)

// accountRefPattern is the shape of a processor account identifier.
var accountRefPattern = regexp.MustCompile(`^acct_[A-Za-z0-9]{8,64}$`)

// ValidAccountRef reports whether ref looks like a processor payout
// account identifier.
func ValidAccountRef(ref string) bool {
	return accountRefPattern.MatchString(ref)
}

// Client talks to the payment processor. All methods honor the
// context deadline and additionally cap each request at the
// configured timeout.
type Client struct {
	http     *resty.Client
	clientID string
}

// NewClient builds a processor client for the given API base URL.
// secretKey authenticates platform-level calls; clientID identifies
// the platform in the OAuth handshake.
func NewClient(baseURL, clientID, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(secretKey).
		SetHeader("Accept", "application/json")
	return &Client{http: rc, clientID: clientID}
}

// AuthorizeURL builds the processor's OAuth authorization URL with
// the given correlation token as state. No network call is made.
func (c *Client) AuthorizeURL(state string) string {
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", c.clientID)
	v.Set("scope", "read_write")
	v.Set("state", state)
	return c.http.BaseURL + "/oauth/authorize?" + v.Encode()
}

// ExchangeCode trades an OAuth authorization code for the connected
// account's reference. A malformed reference in the response is
// rejected with ErrInvalidExternalAccountFormat.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	var out struct {
		AccountID string `json:"account_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": "authorization_code",
			"client_id":  c.clientID,
			"code":       code,
		}).
		SetResult(&out).
		Post("/oauth/token")
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("exchange code: processor returned %s", resp.Status())
	}
	if !ValidAccountRef(out.AccountID) {
		return "", repository.ErrInvalidExternalAccountFormat
	}
	return out.AccountID, nil
}

// VerifyAccount confirms that the payout account exists on the
// processor side. Any failure, including a timeout, is reported as
// ErrExternalVerificationFailed so recovery channels can skip the
// candidate and fall through.
func (c *Client) VerifyAccount(ctx context.Context, accountRef string) error {
	if !ValidAccountRef(accountRef) {
		return repository.ErrInvalidExternalAccountFormat
	}
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/accounts/" + url.PathEscape(accountRef))
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrExternalVerificationFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: processor returned %s", repository.ErrExternalVerificationFailed, resp.Status())
	}
	return nil
}

// RecentAccounts lists payout accounts the processor created for this
// platform after the given instant, newest first. This backs the
// last-resort heuristic recovery channel only.
func (c *Client) RecentAccounts(ctx context.Context, since time.Time) ([]string, error) {
	var out struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("created_after", strconv.FormatInt(since.UTC().Unix(), 10)).
		SetResult(&out).
		Get("/accounts")
	if err != nil {
		return nil, fmt.Errorf("recent accounts: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("recent accounts: processor returned %s", resp.Status())
	}
	refs := make([]string, 0, len(out.Accounts))
	for _, a := range out.Accounts {
		if ValidAccountRef(a.ID) {
			refs = append(refs, a.ID)
		}
	}
	return refs, nil
}

// SessionParams describes the checkout session to create on the
// processor. Metadata is the only channel that correlates the
// eventual webhook back to the purchase intent.
type SessionParams struct {
	AmountCents        uint32            // gross amount for the line item
	Currency           string            // ISO currency code (e.g. "usd")
	Description        string            // line item description
	DestinationAccount string            // organizer's payout account ref
	PlatformFeeCents   uint32            // platform's cut of the gross
	SuccessURL         string            // redirect after successful payment
	CancelURL          string            // redirect after abandonment
	Metadata           map[string]string // purchase intent, echoed in webhooks
}

// Session is the processor-hosted checkout flow handle.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a processor-hosted checkout flow and
// returns its id and redirect URL. The call is fire-and-forget from
// the platform's perspective: nothing is reserved locally.
func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	body := map[string]interface{}{
		"amount_cents":        p.AmountCents,
		"currency":            p.Currency,
		"description":         p.Description,
		"destination_account": p.DestinationAccount,
		"application_fee":     p.PlatformFeeCents,
		"success_url":         p.SuccessURL,
		"cancel_url":          p.CancelURL,
		"metadata":            p.Metadata,
	}
	var out Session
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create checkout session: processor returned %s", resp.Status())
	}
	return &out, nil
}
