package tpengine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opipolix/gateway/internal/application/clobsession"
	"github.com/opipolix/gateway/internal/application/tpengine"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/opipolix/gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClob struct {
	mu          sync.Mutex
	orderStatus map[string]any
	placed      []domain.SignedOrder
}

func (f *fakeClob) PostSignedOrder(ctx context.Context, order domain.SignedOrder, orderType string) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, order)
	return domain.OrderResult{OrderID: fmt.Sprintf("tp-order-%d", len(f.placed)), Status: "live"}, nil
}

func (f *fakeClob) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderStatus, nil
}

func (f *fakeClob) GetOpenOrders(ctx context.Context) ([]map[string]any, error) { return nil, nil }
func (f *fakeClob) CancelOrder(ctx context.Context, orderID string) error       { return nil }
func (f *fakeClob) CancelAll(ctx context.Context) error                        { return nil }
func (f *fakeClob) GetBalanceAllowance(ctx context.Context, assetType, tokenID string) (map[string]any, error) {
	return nil, nil
}

func (f *fakeClob) setFillPct(pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderStatus = map[string]any{"status": "partially filled", "filled_pct": pct}
}

func (f *fakeClob) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func newTestSession(fake *fakeClob) tpengine.SessionFactory {
	return func(creds domain.ClobCreds, eoaAddress, funderAddress string) *clobsession.Session {
		return clobsession.New(fake, clobsession.Signer{Address: eoaAddress, ChainID: 137})
	}
}

func validSignature(suffix string) string {
	return "0x" + suffix + "00000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"
}

func testSignedTpOrder(levelIdx int, sigByte string) domain.SignedTpOrder {
	return domain.SignedTpOrder{
		LevelIndex: levelIdx,
		OrderType:  "GTC",
		SignedOrder: domain.SignedOrder{
			Salt:          "1",
			Maker:         "0x0000000000000000000000000000000000000001",
			Signer:        "0x0000000000000000000000000000000000000001",
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       "123",
			MakerAmount:   "1000000",
			TakerAmount:   "2000000",
			Expiration:    "0",
			Nonce:         "0",
			FeeRateBps:    "0",
			Side:          "SELL",
			SignatureType: 0,
			Signature:     validSignature(sigByte),
		},
	}
}

func testSession() domain.Session {
	return domain.Session{
		EOAAddress: "0xabc0000000000000000000000000000000000a",
		ClobCreds:  domain.ClobCreds{APIKey: "k", APISecret: "s", Passphrase: "p"},
	}
}

func TestArm_RejectsMismatchedLevelsAndOrders(t *testing.T) {
	st := store.New()
	fake := &fakeClob{}
	eng := tpengine.New(st, newTestSession(fake), 5.0, 240)

	_, err := eng.Arm(t.Context(), testSession(), domain.TpArmRequest{
		Mode:            "ladder",
		EntrySizeTokens: 100,
		Levels:          []domain.TpLevel{{Price: 0.6, SizePct: 50}, {Price: 0.7, SizePct: 50}},
		SignedTpOrders:  []domain.SignedTpOrder{testSignedTpOrder(0, "aa")},
	})
	require.Error(t, err)
}

func TestEngine_PlacesLevelsAsFillCrosses(t *testing.T) {
	st := store.New()
	fake := &fakeClob{}
	fake.setFillPct(0)
	eng := tpengine.New(st, newTestSession(fake), 5.0, 240)

	arm, err := eng.Arm(t.Context(), testSession(), domain.TpArmRequest{
		Mode:            "ladder",
		EntryOrderID:    "entry-1",
		EntrySizeTokens: 100,
		Levels:          []domain.TpLevel{{Price: 0.6, SizePct: 50}, {Price: 0.7, SizePct: 50}},
		SignedTpOrders: []domain.SignedTpOrder{
			testSignedTpOrder(0, "aa"),
			testSignedTpOrder(1, "bb"),
		},
		MaxMinutes: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ArmStatusArmed, arm.Status)
	st.UpdateTpArm(arm.ArmID, func(a *domain.TpArm) { a.PollSeconds = 0.05 })

	fake.setFillPct(0.5)
	require.Eventually(t, func() bool {
		return fake.placedCount() >= 1
	}, 2*time.Second, 20*time.Millisecond)

	fake.setFillPct(1.0)
	require.Eventually(t, func() bool {
		return fake.placedCount() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		got, ok := st.GetTpArm(arm.ArmID)
		return ok && got.Status == domain.ArmStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	got, ok := st.GetTpArm(arm.ArmID)
	require.True(t, ok)
	assert.Len(t, got.PlacedLevels, 2)
}

func TestEngine_NeverPlacesSameLevelTwice(t *testing.T) {
	st := store.New()
	fake := &fakeClob{}
	fake.setFillPct(1.0)
	eng := tpengine.New(st, newTestSession(fake), 5.0, 240)

	arm, err := eng.Arm(t.Context(), testSession(), domain.TpArmRequest{
		Mode:            "single",
		EntryOrderID:    "entry-2",
		EntrySizeTokens: 10,
		Levels:          []domain.TpLevel{{Price: 0.6, SizePct: 100}},
		SignedTpOrders:  []domain.SignedTpOrder{testSignedTpOrder(0, "cc")},
		MaxMinutes:      1,
	})
	require.NoError(t, err)
	st.UpdateTpArm(arm.ArmID, func(a *domain.TpArm) { a.PollSeconds = 0.05 })

	require.Eventually(t, func() bool {
		got, ok := st.GetTpArm(arm.ArmID)
		return ok && got.Status == domain.ArmStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, fake.placedCount())
}

func TestGetStatus_FiltersByOwner(t *testing.T) {
	st := store.New()
	fake := &fakeClob{}
	fake.setFillPct(0)
	eng := tpengine.New(st, newTestSession(fake), 5.0, 240)

	sess := testSession()
	arm, err := eng.Arm(t.Context(), sess, domain.TpArmRequest{
		Mode:            "single",
		EntryOrderID:    "entry-3",
		EntrySizeTokens: 10,
		Levels:          []domain.TpLevel{{Price: 0.6, SizePct: 100}},
		SignedTpOrders:  []domain.SignedTpOrder{testSignedTpOrder(0, "dd")},
		MaxMinutes:      1,
	})
	require.NoError(t, err)

	assert.Len(t, eng.GetStatus(sess.EOAAddress, ""), 1)
	assert.Empty(t, eng.GetStatus("0xsomeoneelse00000000000000000000000000", arm.ArmID))
	assert.Len(t, eng.GetStatus(sess.EOAAddress, arm.ArmID), 1)
}
