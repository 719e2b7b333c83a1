package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opipolix/gateway/internal/application/auth"
	"github.com/opipolix/gateway/internal/application/ordervalidate"
	"github.com/opipolix/gateway/internal/domain"
)

// entrySideSell is the side every take-profit exit order must carry: a TP
// ladder only ever closes a long position.
const entrySideSell = "SELL"

type nonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// handleNonce issues a fresh SIWE challenge for a wallet address.
func (d *Deps) handleNonce(c *gin.Context) {
	var req nonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationFailed("invalid request body: %v", err))
		return
	}
	if err := auth.ValidateAddress(req.Address); err != nil {
		abortWithError(c, err)
		return
	}

	template := auth.BuildSIWEMessage(req.Address, "{nonce}", d.ChainID, time.Now())
	rec := d.Store.CreateNonce(req.Address, template, d.NonceTTL)
	message := strings.ReplaceAll(rec.Message, "{nonce}", rec.Nonce)

	c.JSON(http.StatusOK, gin.H{
		"nonce":    rec.Nonce,
		"message":  message,
		"chain_id": d.ChainID,
	})
}

type verifyRequest struct {
	Address           string `json:"address" binding:"required"`
	Nonce             string `json:"nonce" binding:"required"`
	Message           string `json:"message" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
	ChainID           int64  `json:"chain_id"`
	ClobAuthSignature string `json:"clob_auth_signature" binding:"required"`
	ClobAuthTimestamp int64  `json:"clob_auth_timestamp"`
	ClobAuthNonce     int64  `json:"clob_auth_nonce"`
}

// handleVerify completes the SIWE + CLOB-auth handshake: it checks the
// personal_sign over the nonce-bound message, the EIP-712 ClobAuth
// signature, derives L2 API credentials, resolves the wallet's trading
// context, and mints a session cookie.
func (d *Deps) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationFailed("invalid request body: %v", err))
		return
	}
	if err := auth.ValidateAddress(req.Address); err != nil {
		abortWithError(c, err)
		return
	}

	rec, ok := d.Store.ConsumeNonce(req.Address, req.Nonce)
	if !ok {
		abortWithError(c, domain.AuthInvalid("Nonce is invalid or expired"))
		return
	}

	expectedMessage := strings.ReplaceAll(rec.Message, "{nonce}", req.Nonce)
	if expectedMessage != req.Message {
		abortWithError(c, domain.AuthInvalid("Signed message mismatch"))
		return
	}
	if err := auth.RecoverPersonalSigner(req.Message, req.Signature, req.Address); err != nil {
		abortWithError(c, err)
		return
	}
	if _, err := auth.RecoverClobAuthSigner(req.Address, req.ClobAuthSignature, req.ClobAuthTimestamp, req.ClobAuthNonce, req.ChainID); err != nil {
		abortWithError(c, err)
		return
	}

	creds, err := d.CredentialDeriver.Derive(c.Request.Context(), req.Address, req.ClobAuthSignature, req.ClobAuthTimestamp, req.ClobAuthNonce)
	if err != nil {
		abortWithError(c, err)
		return
	}

	tc := d.Resolver.Resolve(c.Request.Context(), req.Address)
	sess := d.Store.CreateSession(req.Address, creds, tc, d.SessionTTL)

	c.SetCookie(d.SessionCookieName, sess.Token, int(d.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"eoa_address":     sess.EOAAddress,
		"trading_context": sess.TradingContext,
	})
}

// handleMe returns the caller's resolved identity and trading context.
func (d *Deps) handleMe(c *gin.Context) {
	sess := sessionFromContext(c)
	c.JSON(http.StatusOK, gin.H{
		"eoa_address":     sess.EOAAddress,
		"trading_context": sess.TradingContext,
	})
}

// handleSearch runs a free-text market search against wallet metadata.
func (d *Deps) handleSearch(c *gin.Context) {
	query := c.Query("query")
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := d.Resolver.Search(c.Request.Context(), query, limit)
	if err != nil {
		abortWithError(c, domain.UpstreamAPIError(http.StatusBadGateway, err.Error()))
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

// handleTokenMeta returns everything a client needs to build a valid signed
// order for a token. neg_risk, tick_size, fee_rate_bps, and the derived
// exchange_address are load-bearing and fail the request if unavailable;
// best_bid/best_ask are best-effort and degrade silently if the order book
// can't be fetched.
func (d *Deps) handleTokenMeta(c *gin.Context) {
	tokenID := c.Query("token_id")
	if tokenID == "" {
		abortWithError(c, domain.ValidationFailed("token_id is required"))
		return
	}
	ctx := c.Request.Context()

	negRisk, err := d.PublicCLOB.IsNegRisk(ctx, tokenID)
	if err != nil {
		abortWithError(c, domain.UpstreamAPIError(http.StatusBadGateway, err.Error()))
		return
	}
	tickSize, err := d.PublicCLOB.TickSize(ctx, tokenID)
	if err != nil {
		abortWithError(c, domain.UpstreamAPIError(http.StatusBadGateway, err.Error()))
		return
	}
	feeRateBps, err := d.PublicCLOB.FeeRateBps(ctx, tokenID)
	if err != nil {
		abortWithError(c, domain.UpstreamAPIError(http.StatusBadGateway, err.Error()))
		return
	}
	exchangeAddress, ok := ordervalidate.ExchangeAddress(d.ChainID, negRisk)
	if !ok {
		abortWithError(c, domain.ValidationFailed("no exchange contract configured for chain %d", d.ChainID))
		return
	}

	meta := domain.TokenMeta{
		TokenID:         tokenID,
		ChainID:         d.ChainID,
		NegRisk:         negRisk,
		TickSize:        tickSize,
		FeeRateBps:      feeRateBps,
		ExchangeAddress: exchangeAddress,
	}

	if book, err := d.PublicCLOB.OrderBook(ctx, tokenID); err == nil {
		meta.BestBid = book.BestBid
		meta.BestAsk = book.BestAsk
	}

	c.JSON(http.StatusOK, meta)
}

// handleTokenAllowance returns the CLOB's on-file balance/allowance for both
// the collateral asset and the token's conditional asset.
func (d *Deps) handleTokenAllowance(c *gin.Context) {
	tokenID := c.Query("token_id")
	if tokenID == "" {
		abortWithError(c, domain.ValidationFailed("token_id is required"))
		return
	}

	sess := sessionFromContext(c)
	session := d.sessionFor(sess)
	ctx := c.Request.Context()

	collateral, err := session.GetBalanceAllowance(ctx, string(domain.AssetTypeCollateral), tokenID)
	if err != nil {
		abortWithError(c, domain.UpstreamAPIError(http.StatusBadGateway, err.Error()))
		return
	}
	conditional, err := session.GetBalanceAllowance(ctx, string(domain.AssetTypeConditional), tokenID)
	if err != nil {
		abortWithError(c, domain.UpstreamAPIError(http.StatusBadGateway, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token_id":    tokenID,
		"collateral":  collateral,
		"conditional": conditional,
	})
}

// calcOrderSizeTokens derives an order's size in tokens from its signed
// amounts when the caller didn't supply one explicitly: a BUY's token
// count is its taker amount, a SELL's is its maker amount, both carried on
// the wire scaled by 1e6.
func calcOrderSizeTokens(order domain.SignedOrder) (float64, error) {
	side := strings.ToUpper(strings.TrimSpace(order.Side))
	amount := order.TakerAmount
	if side == "SELL" || side == "1" {
		amount = order.MakerAmount
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0, domain.ValidationFailed("signed order amount is not numeric: %v", err)
	}
	return raw / 1e6, nil
}

// handlePlaceLimitOrder re-validates and forwards a pre-signed limit order.
// An idempotency key is checked before anything else, so a retried request
// never re-validates or re-forwards.
func (d *Deps) handlePlaceLimitOrder(c *gin.Context) {
	var req domain.LimitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationFailed("invalid request body: %v", err))
		return
	}

	if req.IdempotencyKey != "" && !d.Store.MarkIdempotent(req.IdempotencyKey) {
		c.JSON(http.StatusOK, gin.H{
			"status": "duplicate",
			"detail": "idempotency_key already used",
		})
		return
	}

	sess := sessionFromContext(c)
	funderAddress := sess.TradingContext.FunderAddress()

	if err := ordervalidate.ValidateAgainstSession(
		req.SignedOrder, sess.EOAAddress, funderAddress, sess.TradingContext.SignatureType, req.TokenID, req.Side,
	); err != nil {
		abortWithError(c, err)
		return
	}

	recovered, err := ordervalidate.RecoverOrderSigner(req.SignedOrder, d.ChainID, ordervalidate.RecoverAddress)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := ordervalidate.ConfirmSignerMatches(recovered, sess.EOAAddress); err != nil {
		abortWithError(c, err)
		return
	}

	entrySizeTokens := 0.0
	switch {
	case req.SizeTokens != nil:
		entrySizeTokens = *req.SizeTokens
	case req.SizeUSDC != nil && req.Price > 0:
		entrySizeTokens = *req.SizeUSDC / req.Price
	default:
		entrySizeTokens, err = calcOrderSizeTokens(req.SignedOrder)
		if err != nil {
			abortWithError(c, err)
			return
		}
	}

	session := d.sessionFor(sess)
	result, err := session.PostSignedOrder(c.Request.Context(), req.SignedOrder, req.OrderType)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"order_id":          result.OrderID,
		"entry_size_tokens": entrySizeTokens,
		"raw":               result,
	})
}

// handleCancelOrder cancels a single resting order.
func (d *Deps) handleCancelOrder(c *gin.Context) {
	var req domain.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationFailed("invalid request body: %v", err))
		return
	}
	if req.OrderID == "" {
		abortWithError(c, domain.ValidationFailed("order_id is required"))
		return
	}

	sess := sessionFromContext(c)
	session := d.sessionFor(sess)
	if err := session.CancelOrder(c.Request.Context(), req.OrderID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "order_id": req.OrderID})
}

// handleCancelAll cancels every open order for the caller's funding wallet.
func (d *Deps) handleCancelAll(c *gin.Context) {
	sess := sessionFromContext(c)
	session := d.sessionFor(sess)
	if err := session.CancelAll(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled_all"})
}

// handleArmTp validates every ladder level's exit order against the session
// and starts monitoring the ladder. Unlike the entry order, exit orders are
// only checked field-by-field here; their signatures are trusted at the
// point the CLOB itself accepts them for forwarding.
func (d *Deps) handleArmTp(c *gin.Context) {
	var req domain.TpArmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationFailed("invalid request body: %v", err))
		return
	}

	sess := sessionFromContext(c)
	funderAddress := sess.TradingContext.FunderAddress()

	for _, signed := range req.SignedTpOrders {
		if err := ordervalidate.ValidateAgainstSession(
			signed.SignedOrder, sess.EOAAddress, funderAddress, sess.TradingContext.SignatureType, req.TokenID, entrySideSell,
		); err != nil {
			abortWithError(c, err)
			return
		}
	}

	arm, err := d.TPEngine.Arm(c.Request.Context(), sess, req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "armed",
		"arm_id":         arm.ArmID,
		"entry_order_id": arm.EntryOrderID,
	})
}

// handleTpStatus returns the caller's take-profit arms, or a single arm if
// arm_id is given.
func (d *Deps) handleTpStatus(c *gin.Context) {
	sess := sessionFromContext(c)
	armID := c.Query("arm_id")
	arms := d.TPEngine.GetStatus(sess.EOAAddress, armID)
	if arms == nil {
		arms = []domain.TpArm{}
	}
	c.JSON(http.StatusOK, gin.H{"arms": arms})
}
