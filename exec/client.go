package exec

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXCHANGE EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Bittrex v1.1 style REST API: public market data plus authenticated market
// and account calls signed with HMAC-SHA512 over the full request URI
// (apisign header). Without credentials the client simulates fills so the
// engine can run dry.
//
// ═══════════════════════════════════════════════════════════════════════════════

const defaultBaseURL = "https://bittrex.com/api/v1.1"

// envelope is the common response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// MarketInfo describes one tradable market.
type MarketInfo struct {
	MarketName     string `json:"MarketName"`
	BaseCurrency   string `json:"BaseCurrency"`
	MarketCurrency string `json:"MarketCurrency"`
	IsActive       bool   `json:"IsActive"`
}

// MarketSummary is one row of the summaries feed.
type MarketSummary struct {
	MarketName string          `json:"MarketName"`
	Last       decimal.Decimal `json:"Last"`
	TimeStamp  string          `json:"TimeStamp"`
}

// Time parses the summary timestamp. The exchange omits the zone; it is UTC.
func (s MarketSummary) Time() (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.99", s.TimeStamp)
}

type orderResult struct {
	UUID string `json:"uuid"`
}

type balanceRow struct {
	Currency  string          `json:"Currency"`
	Available decimal.Decimal `json:"Available"`
}

// Client talks to the exchange. With empty credentials every order call is a
// simulated fill and balances track the simulated position book.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client

	mu        sync.Mutex
	simulated map[string]decimal.Decimal // dry-run balances, by currency
}

// NewClient creates an execution client. Empty key/secret means dry run.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		simulated:  make(map[string]decimal.Decimal),
	}

	mode := "DRY RUN"
	if c.Live() {
		mode = "LIVE"
	}
	log.Info().Str("mode", mode).Str("url", baseURL).Msg("🚀 Execution client initialized")
	return c
}

// Live reports whether real credentials are configured.
func (c *Client) Live() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// ─── Public market data ────────────────────────────────────────────────────────

// GetMarkets fetches the tradable market universe.
func (c *Client) GetMarkets() ([]MarketInfo, error) {
	var markets []MarketInfo
	if err := c.public("/public/getmarkets", nil, &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// GetMarketSummaries fetches the latest rate for every market.
func (c *Client) GetMarketSummaries() ([]MarketSummary, error) {
	var summaries []MarketSummary
	if err := c.public("/public/getmarketsummaries", nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// ─── Order placement ───────────────────────────────────────────────────────────

// Buy places a buy limit order at the given rate and returns the order id.
func (c *Client) Buy(market string, rate, amount decimal.Decimal) (string, error) {
	if !c.Live() {
		return c.simulateBuy(market, amount)
	}

	var res orderResult
	err := c.signed("/market/buylimit", url.Values{
		"market":   {market},
		"quantity": {amount.String()},
		"rate":     {rate.String()},
	}, &res)
	if err != nil {
		return "", fmt.Errorf("buy %s: %w", market, err)
	}
	return res.UUID, nil
}

// Sell places a sell limit order for the full amount. When the account holds
// none of the market currency it reports types.ErrNoPosition so the engine
// can take its recovery path.
func (c *Client) Sell(market string, rate, amount decimal.Decimal) (string, error) {
	if !c.Live() {
		return c.simulateSell(market, amount)
	}

	var res orderResult
	err := c.signed("/market/selllimit", url.Values{
		"market":   {market},
		"quantity": {amount.String()},
		"rate":     {rate.String()},
	}, &res)
	if err != nil {
		if isInsufficient(err) {
			return "", fmt.Errorf("sell %s: %w", market, types.ErrNoPosition)
		}
		return "", fmt.Errorf("sell %s: %w", market, err)
	}
	return res.UUID, nil
}

// Cancel cancels an outstanding order.
func (c *Client) Cancel(market, orderID string) error {
	if !c.Live() {
		log.Debug().Str("market", market).Str("order_id", orderID).Msg("DRY RUN: cancel")
		return nil
	}

	if err := c.signed("/market/cancel", url.Values{"uuid": {orderID}}, nil); err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	return nil
}

// Balances returns available balances by currency.
func (c *Client) Balances() (map[string]decimal.Decimal, error) {
	if !c.Live() {
		c.mu.Lock()
		defer c.mu.Unlock()
		out := make(map[string]decimal.Decimal, len(c.simulated))
		for currency, amount := range c.simulated {
			out[currency] = amount
		}
		return out, nil
	}

	var rows []balanceRow
	if err := c.signed("/account/getbalances", nil, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.Currency] = row.Available
	}
	return out, nil
}

// ─── Dry-run fills ─────────────────────────────────────────────────────────────

func (c *Client) simulateBuy(market string, amount decimal.Decimal) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	currency := types.MarketCurrency(market)
	c.simulated[currency] = c.simulated[currency].Add(amount)

	orderID := "SIM-" + uuid.NewString()
	log.Debug().Str("market", market).Str("amount", amount.String()).
		Str("order_id", orderID).Msg("📝 DRY RUN: buy filled")
	return orderID, nil
}

func (c *Client) simulateSell(market string, amount decimal.Decimal) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	currency := types.MarketCurrency(market)
	if !c.simulated[currency].IsPositive() {
		return "", types.ErrNoPosition
	}
	c.simulated[currency] = c.simulated[currency].Sub(amount)
	if c.simulated[currency].IsNegative() {
		c.simulated[currency] = decimal.Zero
	}

	orderID := "SIM-" + uuid.NewString()
	log.Debug().Str("market", market).Str("amount", amount.String()).
		Str("order_id", orderID).Msg("📝 DRY RUN: sell filled")
	return orderID, nil
}

// ─── Transport ─────────────────────────────────────────────────────────────────

func (c *Client) public(path string, params url.Values, out interface{}) error {
	uri := c.baseURL + path
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}
	return c.do(uri, false, out)
}

func (c *Client) signed(path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("nonce", strconv.FormatInt(time.Now().UnixNano(), 10))
	uri := c.baseURL + path + "?" + params.Encode()
	return c.do(uri, true, out)
}

func (c *Client) do(uri string, sign bool, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	if sign {
		req.Header.Set("apisign", Sign(c.apiSecret, uri))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange returned %d: %s", resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("exchange error: %s", env.Message)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Sign computes the HMAC-SHA512 hex signature of the full request URI.
func Sign(secret, uri string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}

func isInsufficient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "INSUFFICIENT_FUNDS") || strings.Contains(msg, "ZERO_BALANCE")
}
