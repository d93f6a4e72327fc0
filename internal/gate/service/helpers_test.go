package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/americansport/gymgate/internal/gate/service"
	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/store/memory"
	"github.com/americansport/gymgate/internal/gate/types"
)

// gymLoc is a fixed-offset stand-in for the gym's zone so tests do not
// depend on the tz database.
var gymLoc = time.FixedZone("gym", -3*60*60)

const testSecret = "test-secret"

func at(hh, mm, ss int) time.Time {
	return time.Date(2026, 3, 2, hh, mm, ss, 0, gymLoc)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	clock  *fakeClock
	slots  *service.SlotResolver
	tokens *service.TokenIssuer
	store  *memory.AttendanceStore
	gate   *service.GateService
}

var (
	identitiesOnce sync.Once
	identities     *service.StaticIdentities
	identitiesErr  error
)

// testIdentities is shared across tests; bcrypt hashing is the slow part.
func testIdentities(t *testing.T) *service.StaticIdentities {
	t.Helper()
	identitiesOnce.Do(func() {
		accts := append(service.DemoAccounts(),
			service.Account{Username: "ana", Password: "pw-ana", MemberID: "m_ana"})
		identities, identitiesErr = service.NewStaticIdentities(accts, bcrypt.MinCost)
	})
	require.NoError(t, identitiesErr)
	return identities
}

func newHarness(t *testing.T, start time.Time, seed ...types.AttendanceEvent) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{now: start}, store: memory.NewAttendanceStore(seed...)}
	h.build(t, h.store)
	return h
}

// build wires the gate over st, which may wrap h.store.
func (h *harness) build(t *testing.T, st store.AttendanceStore) {
	t.Helper()
	var err error
	h.slots, err = service.NewSlotResolver(h.clock, gymLoc, service.RotationIntervalMinutes)
	require.NoError(t, err)
	h.tokens, err = service.NewTokenIssuer(h.slots, service.DefaultOperatingWindow(gymLoc), testSecret, "")
	require.NoError(t, err)
	h.gate = service.NewGateService(h.tokens, testIdentities(t), st, zerolog.Nop())
}

// tokenAt is the token a kiosk would have shown at t.
func (h *harness) tokenAt(t time.Time) string {
	return h.tokens.TokenFor(h.slots.SlotOf(t))
}

func ev(id, member string, typ types.EventType, ts time.Time) types.AttendanceEvent {
	return types.AttendanceEvent{ID: id, MemberID: member, Type: typ, Timestamp: ts, Origin: types.OriginManual}
}

// plainStore hides the conditional append of the wrapped store.
type plainStore struct {
	store.AttendanceStore
}

// racingStore lets another device's event land between the controller's
// last read and its conditional append.
type racingStore struct {
	*memory.AttendanceStore
	competing types.AttendanceEvent
}

func (r *racingStore) AppendIfSessionState(ctx context.Context, e types.AttendanceEvent, expectOpen bool) error {
	if err := r.AttendanceStore.AppendAttendanceEvent(ctx, r.competing); err != nil {
		return err
	}
	return r.AttendanceStore.AppendIfSessionState(ctx, e, expectOpen)
}

var errDiskFull = errors.New("disk full")

// failingStore fails reads or writes on demand.
type failingStore struct {
	*memory.AttendanceStore
	failRead   bool
	failAppend bool
}

func (f *failingStore) ReadAttendanceEvents(ctx context.Context) ([]types.AttendanceEvent, error) {
	if f.failRead {
		return nil, errDiskFull
	}
	return f.AttendanceStore.ReadAttendanceEvents(ctx)
}

func (f *failingStore) AppendIfSessionState(ctx context.Context, e types.AttendanceEvent, expectOpen bool) error {
	if f.failAppend {
		return errDiskFull
	}
	return f.AttendanceStore.AppendIfSessionState(ctx, e, expectOpen)
}
