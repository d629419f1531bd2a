// Package backend is the HTTP client for the account API. Every call carries
// the session's bearer token; the backend owns authentication, the gateway
// only relays the token.
//
// Methods return caller-facing prose rather than structs: the strings go
// straight into function_call_output events, so they are written the way a
// voice agent should read them out.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RequestTimeout bounds every account API call. On expiry the tool result
// carries an apology rather than a stack of retries.
const RequestTimeout = 5 * time.Second

var (
	// ErrUnauthenticated is returned on HTTP 401: missing, expired, or
	// rejected token.
	ErrUnauthenticated = errors.New("backend: unauthenticated")

	// ErrTimeout is returned when the backend does not answer within
	// RequestTimeout.
	ErrTimeout = errors.New("backend: request timed out")

	// ErrUnavailable is returned for transport failures and non-auth error
	// statuses. The tool layer turns it into a retry suggestion.
	ErrUnavailable = errors.New("backend: unavailable")
)

// Client talks to the account API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the account API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: RequestTimeout},
	}
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) request(ctx context.Context, method, path, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthenticated, method, path)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("backend: %s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		detail := env.Detail
		if detail == "" {
			detail = env.Message
		}
		return nil, fmt.Errorf("%w: %s %s: status %d: %s", ErrUnavailable, method, path, resp.StatusCode, detail)
	}
	return env.Data, nil
}

type accountRef struct {
	Balance      float64 `json:"balance"`
	Currency     string  `json:"currency"`
	InterestRate float64 `json:"interestRate"`
}

type balanceData struct {
	AccountNumber  string     `json:"accountNumber"`
	MainAccount    accountRef `json:"mainAccount"`
	SavingsAccount accountRef `json:"savingsAccount"`
	TotalBalance   float64    `json:"totalBalance"`
}

// AccountBalance fetches and formats the caller's balances.
func (c *Client) AccountBalance(ctx context.Context, token string) (string, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/account/balance", token)
	if err != nil {
		return "", err
	}
	var d balanceData
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("backend: decode balance: %w", err)
	}

	var b strings.Builder
	b.WriteString("Here's your account balance:\n\n")
	fmt.Fprintf(&b, "Main Account: %s\n", FormatSGD(d.MainAccount.Balance))
	if d.SavingsAccount.InterestRate > 0 {
		fmt.Fprintf(&b, "Savings Account: %s (%.2f%% p.a.)\n", FormatSGD(d.SavingsAccount.Balance), d.SavingsAccount.InterestRate)
	} else {
		fmt.Fprintf(&b, "Savings Account: %s\n", FormatSGD(d.SavingsAccount.Balance))
	}
	fmt.Fprintf(&b, "Total Balance: %s", FormatSGD(d.TotalBalance))
	return b.String(), nil
}

type detailsData struct {
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	AccountType    string     `json:"accountType"`
	AccountNumber  string     `json:"accountNumber"`
	AccountStatus  string     `json:"accountStatus"`
	OpenedDate     string     `json:"openedDate"`
	MainAccount    accountRef `json:"mainAccount"`
	SavingsAccount accountRef `json:"savingsAccount"`
	BusinessName   string     `json:"businessName"`
}

// AccountDetails fetches and formats the caller's account profile.
func (c *Client) AccountDetails(ctx context.Context, token string) (string, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/account/details", token)
	if err != nil {
		return "", err
	}
	var d detailsData
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("backend: decode details: %w", err)
	}

	var b strings.Builder
	b.WriteString("Here are your account details:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", d.Name)
	fmt.Fprintf(&b, "Email: %s\n", d.Email)
	fmt.Fprintf(&b, "Account Type: %s\n", d.AccountType)
	fmt.Fprintf(&b, "Account Number: %s\n", d.AccountNumber)
	fmt.Fprintf(&b, "Status: %s\n", titleCase(d.AccountStatus))
	fmt.Fprintf(&b, "Opened: %s\n\n", d.OpenedDate)
	fmt.Fprintf(&b, "Main Account: %s\n", FormatSGD(d.MainAccount.Balance))
	fmt.Fprintf(&b, "Savings Account: %s", FormatSGD(d.SavingsAccount.Balance))
	if d.BusinessName != "" {
		fmt.Fprintf(&b, "\nBusiness: %s", d.BusinessName)
	}
	return b.String(), nil
}

type transaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
}

type transactionsData struct {
	Transactions []transaction `json:"transactions"`
	Count        int           `json:"count"`
}

// MaxTransactionLimit caps the limit argument of RecentTransactions.
const MaxTransactionLimit = 20

// RecentTransactions fetches and formats up to limit recent transactions.
// limit is clamped to [1, MaxTransactionLimit]; zero selects the backend
// default.
func (c *Client) RecentTransactions(ctx context.Context, token string, limit int) (string, error) {
	path := "/api/transactions/recent"
	if limit > MaxTransactionLimit {
		limit = MaxTransactionLimit
	}
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	raw, err := c.request(ctx, http.MethodGet, path, token)
	if err != nil {
		return "", err
	}
	var d transactionsData
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("backend: decode transactions: %w", err)
	}

	if len(d.Transactions) == 0 {
		return "You don't have any recent transactions.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are your last %d transactions:\n\n", len(d.Transactions))
	for _, txn := range d.Transactions {
		direction := "in"
		if txn.Amount < 0 {
			direction = "out"
		}
		fmt.Fprintf(&b, "%s - %s: %s %s\n", txn.Date, txn.Description, FormatSGD(abs(txn.Amount)), direction)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type cardData struct {
	CardNumber      string  `json:"cardNumber"`
	CardStatus      string  `json:"cardStatus"`
	CardType        string  `json:"cardType"`
	CreditLimit     float64 `json:"creditLimit"`
	AvailableCredit float64 `json:"availableCredit"`
	UsedCredit      float64 `json:"usedCredit"`
	ExpiryDate      string  `json:"expiryDate"`
}

// CardDetails fetches and formats the caller's card status and limits.
func (c *Client) CardDetails(ctx context.Context, token string) (string, error) {
	raw, err := c.request(ctx, http.MethodGet, "/api/card/details", token)
	if err != nil {
		return "", err
	}
	var d cardData
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("backend: decode card details: %w", err)
	}

	var b strings.Builder
	b.WriteString("Here are your card details:\n\n")
	fmt.Fprintf(&b, "Status: %s\n", titleCase(d.CardStatus))
	fmt.Fprintf(&b, "Card: %s\n", d.CardNumber)
	fmt.Fprintf(&b, "Expires: %s\n\n", d.ExpiryDate)
	fmt.Fprintf(&b, "Credit Limit: %s\n", FormatSGD(d.CreditLimit))
	fmt.Fprintf(&b, "Available: %s\n", FormatSGD(d.AvailableCredit))
	fmt.Fprintf(&b, "Used: %s", FormatSGD(d.UsedCredit))
	return b.String(), nil
}

// FreezeCard freezes the caller's card.
func (c *Client) FreezeCard(ctx context.Context, token string) (string, error) {
	if _, err := c.request(ctx, http.MethodPost, "/api/card/freeze", token); err != nil {
		return "", err
	}
	return "Your card has been frozen. All transactions are now blocked. " +
		"To unfreeze it, just ask me anytime.", nil
}

// UnfreezeCard unfreezes the caller's card.
func (c *Client) UnfreezeCard(ctx context.Context, token string) (string, error) {
	if _, err := c.request(ctx, http.MethodPost, "/api/card/unfreeze", token); err != nil {
		return "", err
	}
	return "Your card is active again and ready to use.", nil
}

// Ping checks that the backend is reachable. Used by readiness probes; no
// token is required because the root endpoint is public.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("backend: build ping: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: ping: status %d", resp.StatusCode)
	}
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
