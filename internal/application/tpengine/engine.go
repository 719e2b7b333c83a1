// Package tpengine arms and monitors take-profit ladders: given an entry
// order and a set of pre-signed exit orders, it watches the entry's fill
// progress and places each ladder level's signed order the moment the
// cumulative fill ratio crosses that level's cumulative size share.
package tpengine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opipolix/gateway/internal/application/clobsession"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/opipolix/gateway/internal/store"
)

const (
	defaultPollSeconds = 5.0
	defaultMaxMinutes  = 240

	fillEpsilon = 1e-9

	maxLevels        = 3
	sizePctTolerance = 0.2
)

// SessionFactory builds the session-scoped, normalizing CLOB facade an arm
// should place its exit orders through. Kept as a function rather than a
// single shared *clobsession.Session so each arm always forwards through the
// credentials of the session that armed it, even if that session has since
// been superseded.
type SessionFactory func(creds domain.ClobCreds, eoaAddress, funderAddress string) *clobsession.Session

// Engine arms and monitors take-profit ladders against the store.
type Engine struct {
	store       *store.Store
	newSession  SessionFactory
	pollSeconds float64
	maxMinutes  int
}

// New builds an Engine. newSession is called once per armed ladder to build
// the CLOB-facing facade that ladder's exit orders are placed through.
// pollSeconds is every arm's poll interval (the arm request carries no poll
// setting); maxMinutes is an arm's default when the request omits max_minutes.
// A non-positive value falls back to the package defaults.
func New(st *store.Store, newSession SessionFactory, pollSeconds float64, maxMinutes int) *Engine {
	if pollSeconds <= 0 {
		pollSeconds = defaultPollSeconds
	}
	if maxMinutes <= 0 {
		maxMinutes = defaultMaxMinutes
	}
	return &Engine{store: st, newSession: newSession, pollSeconds: pollSeconds, maxMinutes: maxMinutes}
}

// Arm records a new take-profit ladder and starts monitoring it in the
// background. It returns immediately with the arm's initial state.
func (e *Engine) Arm(ctx context.Context, sess domain.Session, req domain.TpArmRequest) (domain.TpArm, error) {
	if req.Mode != "single" && req.Mode != "ladder" {
		return domain.TpArm{}, domain.ValidationFailed("mode must be \"single\" or \"ladder\", got %q", req.Mode)
	}
	if len(req.Levels) == 0 {
		return domain.TpArm{}, domain.ValidationFailed("levels must be non-empty")
	}
	if len(req.Levels) > maxLevels {
		return domain.TpArm{}, domain.ValidationFailed("levels must not exceed %d, got %d", maxLevels, len(req.Levels))
	}
	if len(req.SignedTpOrders) != len(req.Levels) {
		return domain.TpArm{}, domain.ValidationFailed(
			"signed_tp_orders must carry one entry per level: got %d orders for %d levels",
			len(req.SignedTpOrders), len(req.Levels))
	}
	cumulative := 0.0
	for _, lvl := range req.Levels {
		cumulative += lvl.SizePct
	}
	if math.Abs(cumulative-100.0) > sizePctTolerance {
		return domain.TpArm{}, domain.ValidationFailed("ladder size_pct sums to %.3f, must be within ±%.1f of 100", cumulative, sizePctTolerance)
	}

	signedByLevel := make(map[int]domain.SignedTpOrder, len(req.SignedTpOrders))
	for _, o := range req.SignedTpOrders {
		if o.LevelIndex < 0 || o.LevelIndex >= len(req.Levels) {
			return domain.TpArm{}, domain.ValidationFailed("signed_tp_orders level_index %d out of range", o.LevelIndex)
		}
		signedByLevel[o.LevelIndex] = o
	}

	maxMinutes := req.MaxMinutes
	if maxMinutes <= 0 {
		maxMinutes = e.maxMinutes
	}

	now := time.Now()
	arm := domain.TpArm{
		ArmID:            "tp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		EOAAddress:       sess.EOAAddress,
		CreatedAt:        now,
		UpdatedAt:        now,
		EntryOrderID:     req.EntryOrderID,
		TokenID:          req.TokenID,
		EntrySizeTokens:  req.EntrySizeTokens,
		Mode:             req.Mode,
		Levels:           req.Levels,
		SignedTpOrders:   signedByLevel,
		PlacedLevels:     make(map[int]domain.PlacedLevel),
		Status:           domain.ArmStatusArmed,
		PollSeconds:      e.pollSeconds,
		MaxMinutes:       maxMinutes,
		ClobCreds:        sess.ClobCreds,
		TradingContext:   sess.TradingContext,
	}
	arm = e.store.SaveTpArm(arm)

	go e.monitor(arm.ArmID)

	return arm, nil
}

// GetStatus returns the caller's arms, or a single arm if armID is set,
// filtered to ones owned by eoaAddress.
func (e *Engine) GetStatus(eoaAddress, armID string) []domain.TpArm {
	if armID != "" {
		arm, ok := e.store.GetTpArm(armID)
		if !ok || !sameAddress(arm.EOAAddress, eoaAddress) {
			return nil
		}
		return []domain.TpArm{arm}
	}
	return e.store.GetTpArmsForUser(eoaAddress)
}

func (e *Engine) monitor(armID string) {
	arm, ok := e.store.GetTpArm(armID)
	if !ok {
		return
	}

	session := e.newSession(arm.ClobCreds, arm.EOAAddress, arm.TradingContext.FunderAddress())
	deadline := arm.CreatedAt.Add(time.Duration(arm.MaxMinutes) * time.Minute)

	for {
		arm, ok = e.store.GetTpArm(armID)
		if !ok {
			return
		}
		if isTerminal(arm.Status) {
			return
		}
		if time.Now().After(deadline) {
			e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
				a.Status = domain.ArmStatusTimeout
				a.UpdatedAt = time.Now()
			})
			e.store.AppendTpEvent(armID, domain.TpEvent{At: time.Now(), Event: "timeout"})
			return
		}

		if err := e.tick(context.Background(), session, armID); err != nil {
			e.store.AppendTpEvent(armID, domain.TpEvent{
				At: time.Now(), Event: "poll_error", Message: err.Error(),
			})
		}

		arm, ok = e.store.GetTpArm(armID)
		if !ok || isTerminal(arm.Status) {
			return
		}

		pollWait := time.Duration(arm.PollSeconds * float64(time.Second))
		if pollWait <= 0 {
			pollWait = time.Duration(defaultPollSeconds * float64(time.Second))
		}
		time.Sleep(pollWait)
	}
}

// tick advances one arm by one poll: fetch the entry order's current fill
// state, walk the ladder, and place any newly-crossed level.
func (e *Engine) tick(ctx context.Context, session *clobsession.Session, armID string) error {
	arm, ok := e.store.GetTpArm(armID)
	if !ok {
		return nil
	}

	orderPayload, err := session.GetOrder(ctx, arm.EntryOrderID)
	if err != nil {
		return fmt.Errorf("get entry order: %w", err)
	}

	filledTokens := ExtractFilledTokens(orderPayload, arm.EntrySizeTokens)

	fillRatio := 0.0
	if arm.EntrySizeTokens > 0 {
		fillRatio = filledTokens / arm.EntrySizeTokens
	}
	fillRatio = clamp(fillRatio, 1.0)

	arm, _ = e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
		a.LastFilledTokens = filledTokens
		a.UpdatedAt = time.Now()
	})

	cumulative := 0.0
	for idx, level := range arm.Levels {
		cumulative += level.SizePct / 100.0

		if _, placed := arm.PlacedLevels[idx]; placed {
			continue
		}
		if fillRatio+fillEpsilon < cumulative {
			break
		}

		signed, ok := arm.SignedTpOrders[idx]
		if !ok {
			now := time.Now()
			e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
				a.PlacedLevels[idx] = domain.PlacedLevel{
					Status: "error",
					Error:  "no signed order for level",
					At:     now,
				}
			})
			e.store.AppendTpEvent(armID, domain.TpEvent{
				At: now, Event: "poll_error", Level: idx, Message: "no signed order for level",
			})
			continue
		}

		e.placeLevel(ctx, session, armID, idx, signed, fillRatio)
	}

	arm, ok = e.store.GetTpArm(armID)
	if ok && len(arm.Levels) > 0 && len(arm.PlacedLevels) >= len(arm.Levels) {
		e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
			a.Status = domain.ArmStatusCompleted
			a.UpdatedAt = time.Now()
		})
		e.store.AppendTpEvent(armID, domain.TpEvent{At: time.Now(), Event: "completed"})
	}

	return nil
}

func (e *Engine) placeLevel(ctx context.Context, session *clobsession.Session, armID string, idx int, signed domain.SignedTpOrder, fillRatio float64) {
	idemKey := fmt.Sprintf("%s:%d:%s", armID, idx, signed.SignedOrder.Signature)
	if !e.store.MarkIdempotent(idemKey) {
		return
	}

	result, err := session.PostSignedOrder(ctx, signed.SignedOrder, signed.OrderType)
	now := time.Now()
	if err != nil {
		e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
			a.PlacedLevels[idx] = domain.PlacedLevel{
				Status: "error",
				Error:  err.Error(),
				At:     now,
			}
		})
		e.store.AppendTpEvent(armID, domain.TpEvent{
			At: now, Event: "poll_error", Level: idx, Message: err.Error(),
		})
		return
	}

	e.store.UpdateTpArm(armID, func(a *domain.TpArm) {
		a.PlacedLevels[idx] = domain.PlacedLevel{
			Status:           "placed",
			TpOrderID:        result.OrderID,
			FillRatioTrigger: fillRatio,
			At:               now,
		}
	})
	e.store.AppendTpEvent(armID, domain.TpEvent{At: now, Event: "tp_placed", Level: idx})
}

func isTerminal(status string) bool {
	switch status {
	case domain.ArmStatusCompleted, domain.ArmStatusCancelled, domain.ArmStatusError, domain.ArmStatusTimeout:
		return true
	default:
		return false
	}
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
