// Package polymarket implements venue.Connector for the Polymarket CLOB:
// EIP-712 order signing plus HMAC L2 request authentication. Grounded on the
// teacher repo's internal/platform/polymarket ClobClient, restructured from
// a domain.Order-shaped client into the gateway's venue.Connector contract.
// Order sizes and prices cross the venue boundary as decimal strings
// (github.com/shopspring/decimal) to avoid float drift against the CLOB's
// fixed-point amounts.
package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polymarketbot/internal/crypto"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

const usdcDecimals = 6

// Config configures a Connector.
type Config struct {
	BaseURL       string
	PrivateKeyHex string // secp256k1 private key, hex-encoded
	ChainID       int    // 137 mainnet, 80002 Amoy testnet
}

// Connector implements venue.Connector for Polymarket.
type Connector struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth

	healthy bool
}

// New creates a Polymarket connector and its EIP-712 signer from cfg.
func New(cfg Config) (*Connector, error) {
	signer, err := crypto.NewSigner(cfg.PrivateKeyHex, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("polymarket: %w", err)
	}
	return &Connector{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
	}, nil
}

// Venue returns the lowercase registry key for this connector.
func (c *Connector) Venue() string { return "polymarket" }

// Connect derives an HMAC API key via the CLOB L1 auth flow. Required before
// any order placement call, which uses L2 (HMAC) auth.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.deriveAPIKey(ctx); err != nil {
		c.healthy = false
		return err
	}
	c.healthy = true
	return nil
}

// Disconnect drops the derived API key; the connector is unusable until
// Connect is called again.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.hmacAuth = nil
	c.healthy = false
	return nil
}

// IsHealthy reports whether the last Connect (or request) succeeded.
// Non-blocking.
func (c *Connector) IsHealthy() bool { return c.healthy }

// PlaceOrder signs and submits a limit or market order to the CLOB.
func (c *Connector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	size := decimal.NewFromFloat(req.Size)
	if size.LessThanOrEqual(decimal.Zero) {
		return venue.OrderResult{}, fmt.Errorf("polymarket: %s: size must be positive", venue.ErrInvalidOrder)
	}
	price := decimal.NewFromFloat(0.5)
	if req.LimitPrice != nil {
		price = decimal.NewFromFloat(*req.LimitPrice)
	}

	makerAmount, takerAmount := orderAmounts(req.Side, size, price)
	side := 0
	if req.Side == "no" || req.Side == "sell" {
		side = 1
	}

	salt, err := randomSalt()
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("polymarket: generate salt: %w", err)
	}

	addr := c.signer.Address().Hex()
	payload := crypto.OrderPayload{
		Salt:          salt,
		Maker:         addr,
		Signer:        addr,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       req.MarketID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: 0,
	}

	signature, err := c.signer.SignOrder(payload)
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("polymarket: sign order: %w", err)
	}

	body := map[string]any{
		"order": map[string]any{
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"side":          side,
			"feeRateBps":    payload.FeeRateBps,
			"nonce":         payload.Nonce,
			"expiration":    payload.Expiration,
			"signatureType": payload.SignatureType,
			"signature":     signature,
			"maker":         addr,
			"signer":        addr,
			"taker":         payload.Taker,
		},
		"owner":     addr,
		"orderType": req.OrderType,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return venue.OrderResult{}, err
	}

	var apiResult struct {
		Success bool   `json:"success"`
		OrderID string `json:"orderID"`
		Message string `json:"errorMsg"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return venue.OrderResult{}, fmt.Errorf("polymarket: decode order result: %w", err)
	}

	if !apiResult.Success {
		return venue.OrderResult{
			Status: venue.OrderStatusRejected,
			Error:  apiResult.Message,
		}, nil
	}

	status := venue.OrderStatusSubmitted
	if apiResult.Status == "matched" || apiResult.Status == "filled" {
		status = venue.OrderStatusFilled
	}
	return venue.OrderResult{VenueOrderID: apiResult.OrderID, Status: status}, nil
}

// CancelOrder cancels a single order by its venue order id.
func (c *Connector) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return err
	}
	return decodeCancelResult(respBody)
}

// CancelAllOrders cancels every resting order for the authenticated wallet.
func (c *Connector) CancelAllOrders(ctx context.Context) error {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return err
	}
	return decodeCancelResult(respBody)
}

// GetPositions returns open positions for the authenticated wallet.
func (c *Connector) GetPositions(ctx context.Context) ([]venue.Position, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, err
	}
	var apiPositions []struct {
		TokenID string `json:"tokenID"`
		Side    string `json:"side"`
		Size    string `json:"size"`
		Price   string `json:"avgPrice"`
	}
	if err := json.Unmarshal(respBody, &apiPositions); err != nil {
		return nil, fmt.Errorf("polymarket: decode positions: %w", err)
	}
	out := make([]venue.Position, 0, len(apiPositions))
	for _, p := range apiPositions {
		size, _ := decimal.NewFromString(p.Size)
		price, _ := decimal.NewFromString(p.Price)
		out = append(out, venue.Position{
			MarketID: p.TokenID,
			Side:     p.Side,
			Size:     size.InexactFloat64(),
			Price:    price.InexactFloat64(),
		})
	}
	return out, nil
}

// GetBalance returns the wallet's USDC collateral balance.
func (c *Connector) GetBalance(ctx context.Context) (venue.Balance, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/balance", nil)
	if err != nil {
		return venue.Balance{}, err
	}
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return venue.Balance{}, fmt.Errorf("polymarket: decode balance: %w", err)
	}
	bal, _ := decimal.NewFromString(resp.Balance)
	return venue.Balance{Currency: "USDC", Available: bal.InexactFloat64()}, nil
}

// deriveAPIKey performs the CLOB L1 auth flow to obtain an HMAC API key.
func (c *Connector) deriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	const nonce = int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket: %s: auth failed (HTTP %d): %s", venue.ErrAuth, resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// doAuthenticatedRequest builds, HMAC-signs, sends, and reads an HTTP
// request against the CLOB API, mapping non-2xx responses to venue
// ErrorKinds.
func (c *Connector) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("polymarket: marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("polymarket: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth == nil {
		c.healthy = false
		return nil, fmt.Errorf("polymarket: %s: not connected (no API key derived)", venue.ErrAuth)
	}
	address := c.signer.Address().Hex()
	for k, v := range c.hmacAuth.L2Headers(address, method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy = false
		return nil, fmt.Errorf("polymarket: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket: read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.healthy = false
		}
		return nil, err
	}
	c.healthy = true
	return respBody, nil
}

func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("polymarket: %s: %s", venue.ErrOrderNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("polymarket: %s: %s", venue.ErrAuth, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("polymarket: %s: %s", venue.ErrRateLimited, bodyStr)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("polymarket: %s: %s", venue.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("polymarket: http %d: %s", statusCode, bodyStr)
	}
}

func decodeCancelResult(respBody []byte) error {
	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket: %s: %s", venue.ErrInvalidOrder, result.ErrorMsg)
	}
	return nil
}

// orderAmounts converts a human-readable size/price into the CLOB's
// fixed-point maker/taker amounts (6-decimal USDC units).
func orderAmounts(side string, size, price decimal.Decimal) (maker, taker decimal.Decimal) {
	scale := decimal.New(1, usdcDecimals)
	notional := size.Mul(price).Mul(scale).Truncate(0)
	shares := size.Mul(scale).Truncate(0)
	if side == "no" || side == "sell" {
		return shares, notional
	}
	return notional, shares
}

// randomSalt returns a random base-10 integer string used as the order
// salt, matching the CLOB's expectation of a fresh nonce per order.
func randomSalt() (string, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}
