// Package kalshi implements venue.Connector for the Kalshi exchange: RSA-PSS
// signed REST order placement plus a background WebSocket ping loop used
// only to populate IsHealthy() cheaply.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/polymarketbot/internal/venue"
)

// Config configures a Connector.
type Config struct {
	BaseURL    string
	APIKeyID   string
	PrivateKey []byte // PEM-encoded RSA private key
	WSURL      string // optional: WebSocket endpoint for the health probe
}

// Connector implements venue.Connector for Kalshi.
type Connector struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client

	health *prober
}

// New creates a Kalshi connector from cfg. It returns an error if the
// private key does not parse.
func New(cfg Config) (*Connector, error) {
	c := &Connector{
		baseURL:  cfg.BaseURL,
		apiKeyID: cfg.APIKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if len(cfg.PrivateKey) > 0 {
		if err := c.setRSAPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	}
	if cfg.WSURL != "" {
		c.health = newProber(cfg.WSURL)
	}
	return c, nil
}

// Venue returns the lowercase registry key for this connector.
func (c *Connector) Venue() string { return "kalshi" }

// Connect starts the background health prober, if one is configured.
func (c *Connector) Connect(ctx context.Context) error {
	if c.health != nil {
		c.health.start(ctx)
	}
	return nil
}

// Disconnect stops the background health prober.
func (c *Connector) Disconnect(ctx context.Context) error {
	if c.health != nil {
		c.health.stop()
	}
	return nil
}

// IsHealthy returns the prober's last cached reading. Non-blocking: it never
// makes a network call itself.
func (c *Connector) IsHealthy() bool {
	if c.health == nil {
		return true
	}
	return c.health.isHealthy()
}

// PlaceOrder submits a new order to Kalshi.
func (c *Connector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	order := kalshiOrder{
		Ticker: req.MarketID,
		Action: req.Action,
		Side:   req.Side,
		Type:   req.OrderType,
		Count:  int64(req.Size),
	}
	if req.LimitPrice != nil {
		cents := int64(*req.LimitPrice * 100)
		if req.Side == "yes" {
			order.YesPrice = &cents
		} else {
			order.NoPrice = &cents
		}
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return venue.OrderResult{}, err
	}

	var resp kalshiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.OrderResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	result := venue.OrderResult{VenueOrderID: resp.Order.OrderID}
	switch resp.Order.Status {
	case "executed":
		result.Status = venue.OrderStatusFilled
	case "canceled":
		result.Status = venue.OrderStatusRejected
		result.Error = "order was immediately cancelled"
	default:
		result.Status = venue.OrderStatusSubmitted
	}
	return result, nil
}

// CancelOrder cancels a single order by its venue order id.
func (c *Connector) CancelOrder(ctx context.Context, orderID string) error {
	path := "/portfolio/orders/" + orderID
	_, err := c.doSignedRequest(ctx, http.MethodDelete, path, nil)
	return err
}

// CancelAllOrders cancels every resting order on the account.
func (c *Connector) CancelAllOrders(ctx context.Context) error {
	_, err := c.doSignedRequest(ctx, http.MethodDelete, "/portfolio/orders", nil)
	return err
}

// GetPositions returns open positions reported by Kalshi.
func (c *Connector) GetPositions(ctx context.Context) ([]venue.Position, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		MarketPositions []struct {
			Ticker   string `json:"ticker"`
			Position int64  `json:"position"`
		} `json:"market_positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode positions: %w", err)
	}
	out := make([]venue.Position, 0, len(resp.MarketPositions))
	for _, p := range resp.MarketPositions {
		side := "yes"
		size := float64(p.Position)
		if p.Position < 0 {
			side = "no"
			size = -size
		}
		out = append(out, venue.Position{MarketID: p.Ticker, Side: side, Size: size})
	}
	return out, nil
}

// GetBalance returns the account's cash balance.
func (c *Connector) GetBalance(ctx context.Context) (venue.Balance, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return venue.Balance{}, err
	}
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.Balance{}, fmt.Errorf("kalshi: decode balance: %w", err)
	}
	return venue.Balance{Currency: "USD", Available: float64(resp.Balance) / 100}, nil
}

// setRSAPrivateKey loads an RSA private key from PEM-encoded bytes.
func (c *Connector) setRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// doSignedRequest builds, RSA-PSS signs, sends, and reads an HTTP request
// against the Kalshi API, mapping non-2xx responses to venue ErrorKinds.
func (c *Connector) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("kalshi: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("kalshi: create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kalshi: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kalshi: read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds RSA-PSS-SHA256 authentication headers over
// timestamp+method+path, per Kalshi's signed-request scheme.
func (c *Connector) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: %s: RSA private key not configured", venue.ErrAuth)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path
	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("kalshi: rsa sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx HTTP status codes to venue ErrorKinds.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: %s: %s", venue.ErrAuth, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %s: %s", venue.ErrRateLimited, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %s: %s", venue.ErrOrderNotFound, apiErr.Message)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("kalshi: %s: %s", venue.ErrInvalidOrder, apiErr.Message)
	default:
		return fmt.Errorf("kalshi: http %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

type kalshiOrder struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Count    int64  `json:"count"`
	YesPrice *int64 `json:"yes_price,omitempty"`
	NoPrice  *int64 `json:"no_price,omitempty"`
}

type kalshiOrderResponse struct {
	Order struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"order"`
}
