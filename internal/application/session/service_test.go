package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stake-engine/stake-engine/internal/clock"
	domainaudit "github.com/stake-engine/stake-engine/internal/domain/audit"
	"github.com/stake-engine/stake-engine/internal/domain/ledger"
	ledgermocks "github.com/stake-engine/stake-engine/internal/domain/ledger/mocks"
	"github.com/stake-engine/stake-engine/internal/domain/wager"
	"github.com/stake-engine/stake-engine/internal/infrastructure/memstore"
	"github.com/stake-engine/stake-engine/internal/riskbook"
)

const testTables = `
families:
  ladder:
    kind: progressive
    min_stake: 10
    max_steps: 3
    require_reveal: true
    hazard:
      mode: rate
      rate: 0.3
    curve:
      cap: "2.0"
      steps: ["1.2", "1.5", "2.0"]
  halfback:
    kind: progressive
    min_stake: 10
    max_steps: 5
    hazard:
      mode: rate
      rate: 0.5
    curve:
      base: "1.3"
      growth: 0.9
      cap: "4.0"
    loss:
      refund_fraction: "0.5"
  mines:
    kind: progressive
    min_stake: 10
    max_steps: 3
    hazard:
      mode: cells
      cells: 5
      unsafe: 2
    curve:
      base: "1.4"
      growth: 1
      cap: "8.0"
  marathon:
    kind: progressive
    min_stake: 10
    max_steps: 500
    hazard:
      mode: rate
      rate: 0.01
    curve:
      base: "1.01"
      growth: 0.5
      cap: "50.0"
`

// fixedRNG makes every draw deterministic: a high value never loses, a low
// value always does.
type fixedRNG struct{ f float64 }

func (r fixedRNG) Float64() float64 { return r.f }
func (r fixedRNG) IntN(n int) int   { return int(r.f * float64(n)) }

type nopAudit struct{}

func (nopAudit) Log(ctx context.Context, entry *domainaudit.Entry) {}

type captureEvents struct {
	mu     sync.Mutex
	events []string
}

func (c *captureEvents) Broadcast(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEvents) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func testBook(t *testing.T) *riskbook.Book {
	t.Helper()
	book, err := riskbook.Parse([]byte(testTables))
	require.NoError(t, err)
	return book
}

func newTestService(t *testing.T, ledg ledger.Ledger, rng fixedRNG, clk clock.Clock) (*Service, *memstore.SessionStore, *captureEvents) {
	t.Helper()
	store := memstore.NewSessionStore()
	events := &captureEvents{}
	svc := NewService(store, ledg, testBook(t), nopAudit{}, events, clk, rng, 30*time.Minute, zerolog.Nop())
	return svc, store, events
}

func TestOpenDebitsAndCreatesSession(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, err := svc.Open(ctx, "alice", 100, "ladder")
	require.NoError(t, err)
	assert.Equal(t, wager.StatusActive, snap.Status)
	assert.Equal(t, 0, snap.Step)
	assert.True(t, snap.Multiplier.Equal(decimal.NewFromInt(1)))

	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(900), bal)
	assert.Equal(t, 1, store.Len())
}

func TestOpenInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 50)
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	_, err := svc.Open(ctx, "alice", 100, "ladder")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, 0, store.Len())
	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(50), bal)
}

func TestOpenInvalidStakePerformsNoDebit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ledg := ledgermocks.NewMockLedger(ctrl) // no expectations: any call fails the test
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	_, err := svc.Open(context.Background(), "alice", 5, "ladder")
	require.ErrorIs(t, err, wager.ErrInvalidStake)

	_, err = svc.Open(context.Background(), "", 100, "ladder")
	require.ErrorIs(t, err, wager.ErrInvalidStake)

	_, err = svc.Open(context.Background(), "alice", 100, "no-such-family")
	require.ErrorIs(t, err, wager.ErrUnknownFamily)
}

func TestTwoRevealsThenCashout(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, events := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, err := svc.Open(ctx, "alice", 100, "ladder")
	require.NoError(t, err)

	r1, err := svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, RevealSafe, r1.Outcome)
	assert.True(t, r1.Session.Multiplier.Equal(decimal.RequireFromString("1.2")))

	r2, err := svc.Reveal(ctx, snap.ID, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, RevealSafe, r2.Outcome)
	assert.True(t, r2.Session.Multiplier.Equal(decimal.RequireFromString("1.5")))

	out, err := svc.Cashout(ctx, snap.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, wager.StatusWonSettled, out.Status)
	assert.Equal(t, int64(150), out.Payout)

	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(1050), bal)
	assert.Contains(t, events.names(), "session.won")
}

func TestCashoutTwiceCreditsOnce(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "ladder")
	_, err := svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
	_, err = svc.Cashout(ctx, snap.ID, "alice")
	require.NoError(t, err)
	balAfter, _ := ledg.Balance(ctx, "alice")

	_, err = svc.Cashout(ctx, snap.ID, "alice")
	require.ErrorIs(t, err, wager.ErrAlreadySettled)
	_, err = svc.Reveal(ctx, snap.ID, "alice", 1)
	require.ErrorIs(t, err, wager.ErrAlreadySettled)

	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, balAfter, bal)
}

func TestCashoutRequiresRevealWhenConfigured(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "ladder")
	_, err := svc.Cashout(ctx, snap.ID, "alice")
	require.ErrorIs(t, err, wager.ErrInvalidSelection)
}

func TestRevealNotOwner(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "ladder")
	_, err := svc.Reveal(ctx, snap.ID, "mallory", 0)
	require.ErrorIs(t, err, wager.ErrNotOwner)
	_, err = svc.Cashout(ctx, snap.ID, "mallory")
	require.ErrorIs(t, err, wager.ErrNotOwner)
}

func TestLosingRevealPartialRefund(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, events := newTestService(t, ledg, fixedRNG{0.1}, clock.NewMock(time.Now().UTC()))

	snap, err := svc.Open(ctx, "alice", 101, "halfback")
	require.NoError(t, err)

	res, err := svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, RevealLost, res.Outcome)
	assert.Equal(t, wager.StatusLostSettled, res.Session.Status)
	assert.Equal(t, int64(50), res.Session.Payout) // floor(101 * 0.5)

	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(949), bal) // 1000 - 101 + 50
	assert.Contains(t, events.names(), "session.lost")
}

func TestLosingRevealFullLossMakesNoCredit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	ledg := ledgermocks.NewMockLedger(ctrl)
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.1}, clock.NewMock(time.Now().UTC()))

	ledg.EXPECT().Debit(gomock.Any(), "alice", int64(100)).Return(nil)
	snap, err := svc.Open(ctx, "alice", 100, "ladder")
	require.NoError(t, err)

	// No Credit expectation: a full loss must not touch the ledger.
	res, err := svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, RevealLost, res.Outcome)
	assert.Equal(t, int64(0), res.Session.Payout)
}

func TestFinalStepSettlesAsWin(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "ladder")
	_, err := svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.ID, "alice", 1)
	require.NoError(t, err)

	res, err := svc.Reveal(ctx, snap.ID, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, RevealWon, res.Outcome)
	assert.Equal(t, wager.StatusWonSettled, res.Session.Status)
	assert.Equal(t, int64(200), res.Session.Payout)

	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(1100), bal)
}

func TestCellSelectionValidation(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, _, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "mines")
	_, err := svc.Reveal(ctx, snap.ID, "alice", 7)
	require.ErrorIs(t, err, wager.ErrInvalidSelection)
	_, err = svc.Reveal(ctx, snap.ID, "alice", -1)
	require.ErrorIs(t, err, wager.ErrInvalidSelection)

	_, err = svc.Reveal(ctx, snap.ID, "alice", 3)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.ID, "alice", 3)
	require.ErrorIs(t, err, wager.ErrInvalidSelection)
}

func TestConcurrentRevealsIncrementOnce(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "marathon")

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reveal(ctx, snap.ID, "alice", 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, wager.ErrConcurrentOperation):
				rejected++
			default:
				t.Errorf("unexpected reveal error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, attempts, succeeded+rejected)
	sess, ok := store.Get(snap.ID)
	require.True(t, ok)
	// Every accepted reveal advanced exactly one step; every redelivery was
	// rejected without side effects.
	assert.Equal(t, succeeded, sess.Step)
}

func TestBusySessionRejectsSecondOperation(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	snap, _ := svc.Open(ctx, "alice", 100, "ladder")
	sess, _ := store.Get(snap.ID)
	require.True(t, sess.TryBusy())

	_, err := svc.Reveal(ctx, snap.ID, "alice", 0)
	require.ErrorIs(t, err, wager.ErrConcurrentOperation)
	_, err = svc.Cashout(ctx, snap.ID, "alice")
	require.ErrorIs(t, err, wager.ErrConcurrentOperation)

	sess.ClearBusy()
	_, err = svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
}

func TestLedgerFailureLeavesSessionActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	ledg := ledgermocks.NewMockLedger(ctrl)
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	ledg.EXPECT().Debit(gomock.Any(), "alice", int64(100)).Return(nil)
	snap, err := svc.Open(ctx, "alice", 100, "ladder")
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)

	ledg.EXPECT().Credit(gomock.Any(), "alice", int64(120)).Return(errors.New("connection refused"))
	_, err = svc.Cashout(ctx, snap.ID, "alice")
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	sess, _ := store.Get(snap.ID)
	assert.Equal(t, wager.StatusActive, sess.Status)
	assert.False(t, sess.Busy())

	// The whole operation can be retried once the ledger recovers.
	ledg.EXPECT().Credit(gomock.Any(), "alice", int64(120)).Return(nil)
	out, err := svc.Cashout(ctx, snap.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, wager.StatusWonSettled, out.Status)
}

func TestFinalRevealLedgerFailureLeavesSessionActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	ledg := ledgermocks.NewMockLedger(ctrl)
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clock.NewMock(time.Now().UTC()))

	ledg.EXPECT().Debit(gomock.Any(), "alice", int64(100)).Return(nil)
	snap, err := svc.Open(ctx, "alice", 100, "mines")
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.ID, "alice", 0)
	require.NoError(t, err)
	_, err = svc.Reveal(ctx, snap.ID, "alice", 1)
	require.NoError(t, err)

	ledg.EXPECT().Credit(gomock.Any(), "alice", gomock.Any()).Return(errors.New("connection refused"))
	_, err = svc.Reveal(ctx, snap.ID, "alice", 2)
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	// The failed final reveal must not advance the session: the retry draws
	// at the step the player was on, not one past it.
	sess, _ := store.Get(snap.ID)
	got := sess.Snapshot()
	assert.Equal(t, wager.StatusActive, got.Status)
	assert.Equal(t, 2, got.Step)
	assert.Equal(t, []int{0, 1}, got.Picked)
	assert.False(t, sess.Busy())

	var paid int64
	ledg.EXPECT().Credit(gomock.Any(), "alice", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, amount int64) error {
			paid = amount
			return nil
		})
	res, err := svc.Reveal(ctx, snap.ID, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, RevealWon, res.Outcome)
	assert.Equal(t, wager.StatusWonSettled, res.Session.Status)
	assert.Equal(t, paid, res.Session.Payout)
	assert.Equal(t, []int{0, 1, 2}, res.Session.Picked)
}

func TestExpireRefundsOnceAfterTimeout(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	clk := clock.NewMock(time.Now().UTC())
	svc, _, events := newTestService(t, ledg, fixedRNG{0.9}, clk)

	snap, _ := svc.Open(ctx, "alice", 1000, "ladder")
	bal, _ := ledg.Balance(ctx, "alice")
	require.Equal(t, int64(0), bal)

	// Too young: nothing happens.
	require.NoError(t, svc.Expire(ctx, snap.ID))
	got, _ := svc.Get(ctx, snap.ID)
	assert.Equal(t, wager.StatusActive, got.Status)

	clk.Advance(31 * time.Minute)
	require.NoError(t, svc.Expire(ctx, snap.ID))
	got, _ = svc.Get(ctx, snap.ID)
	assert.Equal(t, wager.StatusExpired, got.Status)
	bal, _ = ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(1000), bal)
	assert.Contains(t, events.names(), "session.expired")

	// Second pass is a no-op.
	require.NoError(t, svc.Expire(ctx, snap.ID))
	bal, _ = ledg.Balance(ctx, "alice")
	assert.Equal(t, int64(1000), bal)
}

func TestSweepExpiresAndPurges(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	ledg.Seed("alice", 1000)
	clk := clock.NewMock(time.Now().UTC())
	svc, store, _ := newTestService(t, ledg, fixedRNG{0.9}, clk)

	stale, _ := svc.Open(ctx, "alice", 100, "ladder")
	settled, _ := svc.Open(ctx, "alice", 100, "ladder")
	_, err := svc.Reveal(ctx, settled.ID, "alice", 0)
	require.NoError(t, err)
	_, err = svc.Cashout(ctx, settled.ID, "alice")
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	expired, purged := svc.Sweep(ctx, time.Hour)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, purged)
	got, _ := svc.Get(ctx, stale.ID)
	assert.Equal(t, wager.StatusExpired, got.Status)

	clk.Advance(2 * time.Hour)
	_, purged = svc.Sweep(ctx, time.Hour)
	assert.Equal(t, 2, purged)
	assert.Equal(t, 0, store.Len())
}

func TestConservationAcrossOperations(t *testing.T) {
	ctx := context.Background()
	ledg := memstore.NewLedger()
	const initial = int64(10_000)
	ledg.Seed("alice", initial)
	clk := clock.NewMock(time.Now().UTC())

	store := memstore.NewSessionStore()
	// Alternate winning and losing draws across sessions.
	for i, f := range []float64{0.9, 0.1, 0.9, 0.1, 0.9, 0.1} {
		svc := NewService(store, ledg, testBook(t), nopAudit{}, nil, clk, fixedRNG{f}, 30*time.Minute, zerolog.Nop())
		family := "halfback"
		if i%2 == 0 {
			family = "ladder"
		}
		snap, err := svc.Open(ctx, "alice", 100, family)
		require.NoError(t, err)
		_, err = svc.Reveal(ctx, snap.ID, "alice", 0)
		require.NoError(t, err)
		sess, _ := store.Get(snap.ID)
		if sess.Status == wager.StatusActive {
			if i%3 == 0 {
				_, err = svc.Cashout(ctx, snap.ID, "alice")
				require.NoError(t, err)
			}
		}
	}

	var escrow, settledNet int64
	for _, sess := range store.All() {
		if sess.Status.Terminal() {
			settledNet += sess.Payout - sess.Stake
		} else {
			escrow += sess.Stake
		}
	}
	bal, _ := ledg.Balance(ctx, "alice")
	assert.Equal(t, initial+settledNet-escrow, bal,
		"sum of debits must equal credits plus outstanding escrow")
}
