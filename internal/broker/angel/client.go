package angel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signaldeck/internal/ratelimit"
	"signaldeck/internal/session"
)

// Options configures a Client
type Options struct {
	Mode    string        // ModeBridge or ModeDirect
	BaseURL string        // bridge URL or SmartAPI host
	Timeout time.Duration // per request
}

// Client is a thin SmartAPI transport. It owns no credentials beyond the
// Session it was built with.
type Client struct {
	sess       session.Session
	mode       string
	baseURL    string
	httpClient *http.Client
	limiters   *ratelimit.MultiLimiter
	log        zerolog.Logger
}

// NewClient creates a SmartAPI client
func NewClient(sess session.Session, opts Options, log zerolog.Logger) *Client {
	if opts.Mode == "" {
		opts.Mode = ModeDirect
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	// SmartAPI quotas: LTP 10/s, historical 3/s, search 1/s
	limiters := ratelimit.NewMultiLimiter()
	limiters.Add(ActionLTP, 10, 5)
	limiters.Add(ActionHistory, 3, 1)
	limiters.Add(ActionSearch, 1, 1)

	return &Client{
		sess:       sess,
		mode:       opts.Mode,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiters:   limiters,
		log:        log.With().Str("component", "angel").Logger(),
	}
}

// Name returns the broker name
func (c *Client) Name() string {
	return "angel"
}

// Session returns the credentials the client was built with
func (c *Client) Session() session.Session {
	return c.sess
}

// call performs one action and returns the envelope's data payload
func (c *Client) call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	if err := c.limiters.Wait(ctx, action); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	url := c.baseURL
	var body interface{} = payload
	if c.mode == ModeBridge {
		body = bridgeRequest{Action: action, Data: payload}
	} else {
		path, ok := actionPaths[action]
		if !ok {
			return nil, fmt.Errorf("unknown action %q", action)
		}
		url += path
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Action: action, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || isThrottled(string(respBody)) {
		c.limiters.SignalRateLimited(action)
		return nil, &APIError{Action: action, Status: resp.StatusCode, Message: "rate limited", Retryable: true}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Action: action, Status: resp.StatusCode, Message: truncate(string(respBody), 120)}
		}
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}

	if resp.StatusCode != http.StatusOK || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = truncate(string(respBody), 120)
		}
		return nil, &APIError{
			Action:    action,
			Status:    resp.StatusCode,
			Code:      env.ErrorCode,
			Message:   msg,
			Retryable: resp.StatusCode >= 500,
		}
	}

	c.limiters.ResetBackoff(action)
	return env.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", c.sess.APIKey)
	req.Header.Set("Authorization", c.sess.Authorization())

	if c.mode == ModeDirect {
		req.Header.Set("X-UserType", "USER")
		req.Header.Set("X-SourceID", "WEB")
		req.Header.Set("X-ClientLocalIP", "127.0.0.1")
		req.Header.Set("X-ClientPublicIP", "127.0.0.1")
		req.Header.Set("X-MACAddress", "02:00:00:00:00:00")
	}
}

// LTP returns the last traded price. Zero means the feed had no price.
func (c *Client) LTP(ctx context.Context, exchange, symbol, token string) (float64, error) {
	data, err := c.call(ctx, ActionLTP, ltpRequest{
		Exchange:      exchange,
		TradingSymbol: symbol,
		SymbolToken:   token,
	})
	if err != nil {
		return 0, err
	}
	if len(data) == 0 || string(data) == "null" {
		return 0, nil
	}

	var ltp ltpData
	if err := json.Unmarshal(data, &ltp); err != nil {
		return 0, fmt.Errorf("decode ltp: %w", err)
	}
	if ltp.LTP == "" {
		return 0, nil
	}

	price, err := strconv.ParseFloat(ltp.LTP.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ltp %q: %w", ltp.LTP, err)
	}
	return price, nil
}

// Candles returns raw history rows, oldest first as delivered by SmartAPI
func (c *Client) Candles(ctx context.Context, exchange, token, interval string, from, to time.Time) ([]CandleRow, error) {
	data, err := c.call(ctx, ActionHistory, historyRequest{
		Exchange:    exchange,
		SymbolToken: token,
		Interval:    interval,
		FromDate:    from.Format(DateLayout),
		ToDate:      to.Format(DateLayout),
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var rows []CandleRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return rows, nil
}

// SearchScrip looks up trading symbols matching query on an exchange
func (c *Client) SearchScrip(ctx context.Context, exchange, query string) ([]ScripMatch, error) {
	data, err := c.call(ctx, ActionSearch, searchRequest{Exchange: exchange, SearchScrip: query})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var matches []ScripMatch
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	return matches, nil
}

// LookupToken implements the resolver's lookup contract on top of searchScrip.
// Only an exact trading-symbol match counts.
func (c *Client) LookupToken(ctx context.Context, symbol, exchange string) (string, error) {
	query := strings.TrimSuffix(symbol, "-EQ")
	matches, err := c.SearchScrip(ctx, exchange, query)
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if strings.EqualFold(m.TradingSymbol, symbol) && m.SymbolToken != "" {
			return m.SymbolToken, nil
		}
	}
	return "", ErrNoMatch
}

// ErrNoMatch means the lookup service answered but knows no such symbol
var ErrNoMatch = errors.New("no matching instrument")

// Health pings the bridge health endpoint. Direct mode is always considered healthy.
func (c *Client) Health(ctx context.Context) bool {
	if c.mode != ModeBridge {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, HealthURL(c.baseURL), nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("bridge health check failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// HealthURL derives the health endpoint from a bridge URL
func HealthURL(bridgeURL string) string {
	u := strings.TrimRight(bridgeURL, "/")
	if strings.HasSuffix(u, "/bridge") {
		return strings.TrimSuffix(u, "/bridge") + "/health"
	}
	return u + "/health"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
