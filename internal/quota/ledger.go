package quota

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coupon-settlement/internal/pkg/clock"

	"github.com/google/uuid"
)

// Dimension identifies one of the three independently tracked usage limits.
type Dimension string

const (
	DimensionGlobal        Dimension = "global"
	DimensionPerUser       Dimension = "per_user"
	DimensionPerUserPerDay Dimension = "per_user_per_day"
)

// Limits are the quota ceilings for one coupon. A nil limit is unlimited.
type Limits struct {
	Total         *int
	PerUser       *int
	PerUserPerDay *int
}

// ExceededError reports which dimension ran out of slots.
type ExceededError struct {
	Dimension Dimension
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded on %s dimension", e.Dimension)
}

// ErrUnknownToken is returned by Commit for a token the ledger has never
// issued or has already fully forgotten. Release treats the same case as a
// no-op, since a swept reservation is already released for quota purposes.
var ErrUnknownToken = &tokenError{"unknown reservation token"}

// ErrTokenNotActive is returned by Commit when the token reached a terminal
// state other than committed (released or expired).
var ErrTokenNotActive = &tokenError{"reservation token is not active"}

type tokenError struct{ msg string }

func (e *tokenError) Error() string { return e.msg }

// terminalRetention bounds how long terminal tokens are remembered for
// idempotent Commit/Release before the sweep forgets them.
const terminalRetention = 24 * time.Hour

type counter struct {
	used     int
	reserved int
}

func (c *counter) full(limit *int) bool {
	return limit != nil && c.used+c.reserved >= *limit
}

func (c *counter) empty() bool {
	return c.used == 0 && c.reserved == 0
}

type hold struct {
	userID    uuid.UUID
	day       string
	expiresAt time.Time
}

type terminalState string

const (
	terminalCommitted terminalState = "committed"
	terminalReleased  terminalState = "released"
	terminalExpired   terminalState = "expired"
)

type terminalEntry struct {
	state terminalState
	at    time.Time
}

type userDay struct {
	userID uuid.UUID
	day    string
}

// couponLedger holds the counters and in-flight holds of one coupon. All
// mutations happen under its mutex; nothing does I/O while it is held.
type couponLedger struct {
	mu         sync.Mutex
	global     counter
	perUser    map[uuid.UUID]*counter
	perUserDay map[userDay]*counter
	active     map[uuid.UUID]*hold
	terminal   map[uuid.UUID]terminalEntry
}

func newCouponLedger() *couponLedger {
	return &couponLedger{
		perUser:    make(map[uuid.UUID]*counter),
		perUserDay: make(map[userDay]*counter),
		active:     make(map[uuid.UUID]*hold),
		terminal:   make(map[uuid.UUID]terminalEntry),
	}
}

// Ledger is the in-memory QuotaLedger: the only component that mutates quota
// counters. Each coupon has its own critical section; two concurrent reserves
// for the same coupon are serialized, so a last slot can never be granted
// twice.
type Ledger struct {
	mu      sync.RWMutex
	coupons map[string]*couponLedger
	tokens  map[uuid.UUID]string // token → coupon code

	clock  clock.Clock
	ttl    time.Duration
	loc    *time.Location
	logger *slog.Logger
}

func NewLedger(clk clock.Clock, ttl time.Duration, loc *time.Location, logger *slog.Logger) *Ledger {
	return &Ledger{
		coupons: make(map[string]*couponLedger),
		tokens:  make(map[uuid.UUID]string),
		clock:   clk,
		ttl:     ttl,
		loc:     loc,
		logger:  logger,
	}
}

// TTL returns the reservation time-to-live the ledger enforces.
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

func (l *Ledger) couponLedger(code string) *couponLedger {
	l.mu.RLock()
	cl, ok := l.coupons[code]
	l.mu.RUnlock()
	if ok {
		return cl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cl, ok = l.coupons[code]; !ok {
		cl = newCouponLedger()
		l.coupons[code] = cl
	}
	return cl
}

// TryReserve atomically checks all three dimensions against used+reserved and,
// if every one passes, increments reserved on all of them. On failure no
// counter moves and the violated dimension is reported. The returned token is
// used as the reservation ID.
func (l *Ledger) TryReserve(code string, userID uuid.UUID, limits Limits) (uuid.UUID, error) {
	now := l.clock.Now()
	day := clock.DayKey(now, l.loc)
	cl := l.couponLedger(code)

	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.pruneLocked(now, code, l.logger)

	if cl.global.full(limits.Total) {
		return uuid.Nil, &ExceededError{Dimension: DimensionGlobal}
	}
	if uc, ok := cl.perUser[userID]; ok && uc.full(limits.PerUser) {
		return uuid.Nil, &ExceededError{Dimension: DimensionPerUser}
	} else if !ok && limits.PerUser != nil && *limits.PerUser == 0 {
		return uuid.Nil, &ExceededError{Dimension: DimensionPerUser}
	}
	dayKey := userDay{userID: userID, day: day}
	if dc, ok := cl.perUserDay[dayKey]; ok && dc.full(limits.PerUserPerDay) {
		return uuid.Nil, &ExceededError{Dimension: DimensionPerUserPerDay}
	} else if !ok && limits.PerUserPerDay != nil && *limits.PerUserPerDay == 0 {
		return uuid.Nil, &ExceededError{Dimension: DimensionPerUserPerDay}
	}

	cl.global.reserved++
	cl.userCounter(userID).reserved++
	cl.userDayCounter(dayKey).reserved++

	token := uuid.New()
	cl.active[token] = &hold{
		userID:    userID,
		day:       day,
		expiresAt: now.Add(l.ttl),
	}

	l.mu.Lock()
	l.tokens[token] = code
	l.mu.Unlock()

	return token, nil
}

// Commit moves the reserved increment to used on all three dimensions.
// Committing an already committed token is a no-op.
func (l *Ledger) Commit(token uuid.UUID) error {
	code, cl, ok := l.lookupToken(token)
	if !ok {
		return ErrUnknownToken
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if entry, done := cl.terminal[token]; done {
		if entry.state == terminalCommitted {
			return nil
		}
		return ErrTokenNotActive
	}

	now := l.clock.Now()
	h, active := cl.active[token]
	if !active {
		return ErrUnknownToken
	}
	if now.After(h.expiresAt) {
		cl.settleHoldLocked(token, h, terminalExpired, now, code, l.logger)
		return ErrTokenNotActive
	}

	dayKey := userDay{userID: h.userID, day: h.day}

	satDec(&cl.global.reserved, code, DimensionGlobal, l.logger)
	cl.global.used++
	uc := cl.userCounter(h.userID)
	satDec(&uc.reserved, code, DimensionPerUser, l.logger)
	uc.used++
	dc := cl.userDayCounter(dayKey)
	satDec(&dc.reserved, code, DimensionPerUserPerDay, l.logger)
	dc.used++

	delete(cl.active, token)
	cl.terminal[token] = terminalEntry{state: terminalCommitted, at: now}
	return nil
}

// Release decrements reserved on all three dimensions. Releasing an unknown,
// already released or expired token is a no-op.
func (l *Ledger) Release(token uuid.UUID) error {
	code, cl, ok := l.lookupToken(token)
	if !ok {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if entry, done := cl.terminal[token]; done {
		if entry.state == terminalCommitted {
			return ErrTokenNotActive
		}
		return nil
	}

	h, active := cl.active[token]
	if !active {
		return nil
	}

	cl.settleHoldLocked(token, h, terminalReleased, l.clock.Now(), code, l.logger)
	return nil
}

// SweepExpired releases every overdue hold and prunes old terminal entries.
// Returns the number of holds expired. Expiry is also applied lazily on every
// TryReserve, so the sweep is a backstop, not a correctness requirement.
func (l *Ledger) SweepExpired() int {
	now := l.clock.Now()

	l.mu.RLock()
	ledgers := make(map[string]*couponLedger, len(l.coupons))
	for code, cl := range l.coupons {
		ledgers[code] = cl
	}
	l.mu.RUnlock()

	total := 0
	var forgotten []uuid.UUID
	for code, cl := range ledgers {
		cl.mu.Lock()
		expired := cl.pruneLocked(now, code, l.logger)
		for token, entry := range cl.terminal {
			if now.Sub(entry.at) > terminalRetention {
				delete(cl.terminal, token)
				forgotten = append(forgotten, token)
			}
		}
		cl.mu.Unlock()

		total += len(expired)
	}

	l.forgetTokens(forgotten)
	return total
}

// Restore re-registers a still-active hold after a restart, so reservations
// persisted before shutdown keep their quota slots.
func (l *Ledger) Restore(code string, token uuid.UUID, userID uuid.UUID, createdAt, expiresAt time.Time) {
	day := clock.DayKey(createdAt, l.loc)
	cl := l.couponLedger(code)

	cl.mu.Lock()
	cl.global.reserved++
	cl.userCounter(userID).reserved++
	cl.userDayCounter(userDay{userID: userID, day: day}).reserved++
	cl.active[token] = &hold{userID: userID, day: day, expiresAt: expiresAt}
	cl.mu.Unlock()

	l.mu.Lock()
	l.tokens[token] = code
	l.mu.Unlock()
}

// Seed records n already-committed redemptions, used to rebuild used counters
// from the usage records at startup.
func (l *Ledger) Seed(code string, userID uuid.UUID, day string, n int) {
	cl := l.couponLedger(code)
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.global.used += n
	cl.userCounter(userID).used += n
	cl.userDayCounter(userDay{userID: userID, day: day}).used += n
}

// CounterView is a point-in-time snapshot of one dimension's counters.
type CounterView struct {
	Used     int
	Reserved int
}

// GlobalCounters returns the live global counters for a coupon.
func (l *Ledger) GlobalCounters(code string) CounterView {
	cl := l.couponLedger(code)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.pruneLocked(l.clock.Now(), code, l.logger)
	return CounterView{Used: cl.global.used, Reserved: cl.global.reserved}
}

// UserCounters returns the live per-user and per-user-today counters.
func (l *Ledger) UserCounters(code string, userID uuid.UUID) (user CounterView, today CounterView) {
	now := l.clock.Now()
	cl := l.couponLedger(code)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.pruneLocked(now, code, l.logger)

	if uc, ok := cl.perUser[userID]; ok {
		user = CounterView{Used: uc.used, Reserved: uc.reserved}
	}
	if dc, ok := cl.perUserDay[userDay{userID: userID, day: clock.DayKey(now, l.loc)}]; ok {
		today = CounterView{Used: dc.used, Reserved: dc.reserved}
	}
	return user, today
}

func (l *Ledger) lookupToken(token uuid.UUID) (string, *couponLedger, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	code, ok := l.tokens[token]
	if !ok {
		return "", nil, false
	}
	cl, ok := l.coupons[code]
	return code, cl, ok
}

func (l *Ledger) forgetTokens(tokens []uuid.UUID) {
	if len(tokens) == 0 {
		return
	}
	l.mu.Lock()
	for _, t := range tokens {
		delete(l.tokens, t)
	}
	l.mu.Unlock()
}

func (cl *couponLedger) userCounter(userID uuid.UUID) *counter {
	c, ok := cl.perUser[userID]
	if !ok {
		c = &counter{}
		cl.perUser[userID] = c
	}
	return c
}

func (cl *couponLedger) userDayCounter(key userDay) *counter {
	c, ok := cl.perUserDay[key]
	if !ok {
		c = &counter{}
		cl.perUserDay[key] = c
	}
	return c
}

// pruneLocked expires overdue holds. Caller holds cl.mu. Returns the expired
// tokens so the caller can drop them from the token index outside the lock.
func (cl *couponLedger) pruneLocked(now time.Time, code string, logger *slog.Logger) []uuid.UUID {
	var expired []uuid.UUID
	for token, h := range cl.active {
		if now.After(h.expiresAt) {
			cl.settleHoldLocked(token, h, terminalExpired, now, code, logger)
			expired = append(expired, token)
		}
	}
	return expired
}

// settleHoldLocked removes a hold and gives back its reserved slots.
// Caller holds cl.mu.
func (cl *couponLedger) settleHoldLocked(token uuid.UUID, h *hold, state terminalState, now time.Time, code string, logger *slog.Logger) {
	dayKey := userDay{userID: h.userID, day: h.day}

	satDec(&cl.global.reserved, code, DimensionGlobal, logger)
	uc := cl.userCounter(h.userID)
	satDec(&uc.reserved, code, DimensionPerUser, logger)
	dc := cl.userDayCounter(dayKey)
	satDec(&dc.reserved, code, DimensionPerUserPerDay, logger)

	if uc.empty() {
		delete(cl.perUser, h.userID)
	}
	if dc.empty() {
		delete(cl.perUserDay, dayKey)
	}

	delete(cl.active, token)
	cl.terminal[token] = terminalEntry{state: state, at: now}
}

// satDec decrements a counter, saturating at zero. A would-be negative counter
// is a programming fault: it is logged as an internal alert and clamped, never
// stored negative.
func satDec(c *int, code string, dim Dimension, logger *slog.Logger) {
	if *c <= 0 {
		logger.Error("quota counter underflow",
			slog.String("coupon", code),
			slog.String("dimension", string(dim)),
		)
		*c = 0
		return
	}
	*c--
}
