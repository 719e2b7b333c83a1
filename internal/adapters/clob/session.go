package clob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opipolix/gateway/internal/domain"
)

// Session is an L2-authenticated, session-scoped facade over the CLOB. It
// holds only derived API credentials and a funder address — never a private
// key — and forwards orders that arrive already signed.
type Session struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	creds   domain.ClobCreds
	address string
	funder  string
}

// NewSession builds a Session for one authenticated wallet. address is the
// session's EOA (used for POLY_ADDRESS headers); funder is the address whose
// balance/orders are acted on, which may be a proxy/safe wallet distinct
// from address.
func NewSession(base string, creds domain.ClobCreds, address, funder string) *Session {
	if base == "" {
		base = defaultBase
	}
	return &Session{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(generalRatePerSec, 50),
		creds:   creds,
		address: address,
		funder:  funder,
	}
}

type signedOrderWire struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type postOrderRequest struct {
	Order     signedOrderWire `json:"order"`
	Owner     string          `json:"owner"`
	OrderType string          `json:"orderType"`
}

type postOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// knownOrderTypes mirrors post_signed_order's getattr(OrderType, name, GTC)
// fallback: an unrecognized order type quietly becomes GTC rather than
// erroring.
var knownOrderTypes = map[string]struct{}{
	"GTC": {}, "FOK": {}, "GTD": {}, "FAK": {},
}

func normalizeOrderType(orderType string) string {
	t := strings.ToUpper(strings.TrimSpace(orderType))
	if _, ok := knownOrderTypes[t]; ok {
		return t
	}
	return "GTC"
}

// PostSignedOrder forwards a pre-signed order to the CLOB.
func (s *Session) PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (domain.OrderResult, error) {
	body := postOrderRequest{
		Order: signedOrderWire{
			Salt:          json.Number(order.Salt),
			Maker:         order.Maker,
			Signer:        order.Signer,
			Taker:         order.Taker,
			TokenID:       order.TokenID,
			MakerAmount:   order.MakerAmount,
			TakerAmount:   order.TakerAmount,
			Expiration:    order.Expiration,
			Nonce:         order.Nonce,
			FeeRateBps:    order.FeeRateBps,
			Side:          order.Side,
			SignatureType: order.SignatureType,
			Signature:     order.Signature,
		},
		Owner:     s.creds.APIKey,
		OrderType: normalizeOrderType(orderType),
	}

	var resp postOrderResponse
	if err := s.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("clob: post signed order: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.OrderResult{}, domain.UpstreamAPIError(400, resp.ErrorMsg)
	}

	return domain.OrderResult{
		OrderID:      resp.OrderID,
		Status:       resp.Status,
		TakingAmount: resp.TakingAmount,
		MakingAmount: resp.MakingAmount,
	}, nil
}

// GetOrder returns the CLOB's current view of a previously placed order.
func (s *Session) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	var resp map[string]any
	if err := s.doL2(ctx, http.MethodGet, "/data/order/"+orderID, nil, &resp); err != nil {
		return nil, fmt.Errorf("clob: get order: %w", err)
	}
	return resp, nil
}

// GetOpenOrders returns all open orders for the session's funder address.
func (s *Session) GetOpenOrders(ctx context.Context) ([]map[string]any, error) {
	path := "/data/orders"
	if s.funder != "" {
		path += "?market=" + s.funder
	}
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := s.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("clob: get open orders: %w", err)
	}
	return resp.Data, nil
}

// CancelOrder cancels a single resting order.
func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]string{"orderID": orderID}
	if err := s.doL2(ctx, http.MethodDelete, "/order", body, nil); err != nil {
		return fmt.Errorf("clob: cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelAll cancels every open order for the session's funder address.
func (s *Session) CancelAll(ctx context.Context) error {
	if err := s.doL2(ctx, http.MethodDelete, "/cancel-all", nil, nil); err != nil {
		return fmt.Errorf("clob: cancel all: %w", err)
	}
	return nil
}

// GetBalanceAllowance returns the balance/allowance the CLOB has on file for
// the given asset type ("COLLATERAL" or "CONDITIONAL") and token.
func (s *Session) GetBalanceAllowance(ctx context.Context, assetType, tokenID string) (map[string]any, error) {
	path := fmt.Sprintf("/balance-allowance?asset_type=%s&signature_type=-1", assetType)
	if tokenID != "" {
		path += "&token_id=" + tokenID
	}
	var resp map[string]any
	if err := s.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("clob: get balance allowance: %w", err)
	}
	return resp, nil
}

func (s *Session) l2Headers(method, path, body string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(s.creds.APISecret)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    s.address,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    s.creds.APIKey,
		"POLY_PASSPHRASE": s.creds.Passphrase,
	}, nil
}

// doL2 executes an authenticated L2 HTTP request with rate limiting and
// retry, regenerating HMAC headers on every attempt so the timestamp stays
// fresh.
func (s *Session) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyStr string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyStr = string(b)
	}

	fullURL := s.base + path

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		headers, err := s.l2Headers(method, path, bodyStr)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if bodyStr != "" {
			bodyReader = bytes.NewReader([]byte(bodyStr))
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			s.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			s.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			if attempt == maxRetries {
				return fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			}
			s.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return domain.UpstreamAPIError(resp.StatusCode, string(respBody))
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (s *Session) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(1<<uint(attempt)) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
