// Package guard gates withdrawal creation by request rate and anomaly heuristics.
//
// Velocity limits are tracked in memory per key (user and optionally ip) and are not
// expected to survive restarts. History based policies are evaluated against stats
// the caller loads from storage under the user's lock.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/logger"
	"github.com/nkiryanov/payouts/internal/models"
)

// Guard configuration. Zero fields are set to defaults
type Config struct {
	ShortWindow time.Duration
	ShortLimit  int
	LongWindow  time.Duration
	LongLimit   int

	MaxPending      int
	DuplicateWindow time.Duration

	// Magnitude anomaly: requested amount over MagnitudeWindow plus the new one exceeds
	// MagnitudeRatio of withdrawable balance, while the new amount is above MagnitudeFloor
	MagnitudeWindow time.Duration
	MagnitudeRatio  decimal.Decimal
	MagnitudeFloor  decimal.Decimal

	// History deviation anomaly
	AvgMultiplier        decimal.Decimal
	MaxMultiplier        decimal.Decimal
	FirstWithdrawalLimit decimal.Decimal

	// Users not flagged for this long get their suspicion level reset
	SuspicionTTL time.Duration
}

func (c Config) withDefaults() Config {
	setDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setInt := func(field *int, def int) {
		if *field == 0 {
			*field = def
		}
	}
	setDecimal := func(field *decimal.Decimal, def int64, exp int32) {
		if field.IsZero() {
			*field = decimal.New(def, exp)
		}
	}

	setDuration(&c.ShortWindow, 5*time.Minute)
	setInt(&c.ShortLimit, 3)
	setDuration(&c.LongWindow, time.Hour)
	setInt(&c.LongLimit, 10)
	setInt(&c.MaxPending, 5)
	setDuration(&c.DuplicateWindow, 5*time.Minute)
	setDuration(&c.MagnitudeWindow, 24*time.Hour)
	setDecimal(&c.MagnitudeRatio, 8, -1)
	setDecimal(&c.MagnitudeFloor, 5000, 0)
	setDecimal(&c.AvgMultiplier, 3, 0)
	setDecimal(&c.MaxMultiplier, 2, 0)
	setDecimal(&c.FirstWithdrawalLimit, 20000, 0)
	setDuration(&c.SuspicionTTL, 24*time.Hour)

	return c
}

type suspicion struct {
	level       int
	lastFlagged time.Time
}

type Guard struct {
	cfg    Config
	logger logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	requests  map[string][]time.Time // request timestamps within the long window, oldest first
	suspicion map[uuid.UUID]suspicion
}

func New(cfg Config, l logger.Logger) *Guard {
	return &Guard{
		cfg:       cfg.withDefaults(),
		logger:    l,
		now:       time.Now,
		requests:  make(map[string][]time.Time),
		suspicion: make(map[uuid.UUID]suspicion),
	}
}

// Window the caller should load request stats for
func (g *Guard) StatsWindow() (magnitudeSince time.Time, duplicateSince time.Time) {
	now := g.now()
	return now.Add(-g.cfg.MagnitudeWindow), now.Add(-g.cfg.DuplicateWindow)
}

// Allow checks velocity limits for the actor and records the attempt if it is allowed
// Limits are tightened by one request per suspicion level, but never below one
// The returned release drops the recorded attempt, callers use it when the request was not created
func (g *Guard) Allow(userID uuid.UUID, ip string) (release func(), err error) {
	now := g.now()

	keys := []string{"user:" + userID.String()}
	if ip != "" {
		keys = append(keys, "ip:"+ip)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	level := g.suspicion[userID].level
	shortLimit := max(1, g.cfg.ShortLimit-level)
	longLimit := max(1, g.cfg.LongLimit-level)

	for _, key := range keys {
		recent := g.prune(key, now)

		inShort := 0
		shortSince := now.Add(-g.cfg.ShortWindow)
		for _, at := range recent {
			if at.After(shortSince) {
				inShort++
			}
		}

		switch {
		case inShort >= shortLimit:
			return nil, fmt.Errorf("%w: more than %d requests in %s", apperrors.ErrTooManyRequests, shortLimit, g.cfg.ShortWindow)
		case len(recent) >= longLimit:
			return nil, fmt.Errorf("%w: more than %d requests in %s", apperrors.ErrTooManyRequests, longLimit, g.cfg.LongWindow)
		}
	}

	for _, key := range keys {
		g.requests[key] = append(g.requests[key], now)
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for _, key := range keys {
				g.forget(key, now)
			}
		})
	}

	return release, nil
}

// forget removes one attempt recorded at the given time. Must be called with lock held
func (g *Guard) forget(key string, at time.Time) {
	recent := g.requests[key]
	for i := len(recent) - 1; i >= 0; i-- {
		if !recent[i].Equal(at) {
			continue
		}
		recent = append(recent[:i], recent[i+1:]...)
		if len(recent) == 0 {
			delete(g.requests, key)
		} else {
			g.requests[key] = recent
		}
		return
	}
}

// CheckPending rejects the request when the user already has too many pending withdrawals
func (g *Guard) CheckPending(pendingCount int) error {
	if pendingCount >= g.cfg.MaxPending {
		return fmt.Errorf("%w: %d pending requests already", apperrors.ErrTooManyRequests, pendingCount)
	}
	return nil
}

// prune drops timestamps older than the long window. Must be called with lock held
func (g *Guard) prune(key string, now time.Time) []time.Time {
	recent := g.requests[key]
	since := now.Add(-g.cfg.LongWindow)

	i := 0
	for i < len(recent) && !recent[i].After(since) {
		i++
	}
	recent = recent[i:]

	if len(recent) == 0 {
		delete(g.requests, key)
		return nil
	}

	g.requests[key] = recent
	return recent
}

// Input of history based policies
type Input struct {
	UserID       uuid.UUID
	Amount       decimal.Decimal
	Withdrawable decimal.Decimal
	Stats        models.WithdrawalStats
}

// Inspect evaluates history based policies
// Anomalies raise the user's suspicion level, that tightens future rate limits
func (g *Guard) Inspect(in Input) error {
	if in.Stats.HasRecentDuplicate {
		return fmt.Errorf("%w: same amount and method requested within %s", apperrors.ErrDuplicateRequest, g.cfg.DuplicateWindow)
	}

	if reason := g.anomaly(in); reason != "" {
		level := g.flag(in.UserID)
		g.logger.Warn("Suspicious withdrawal request", "user_id", in.UserID, "amount", in.Amount.StringFixed(2), "reason", reason, "suspicion_level", level)
		return fmt.Errorf("%w: %s", apperrors.ErrSuspiciousActivity, reason)
	}

	return nil
}

func (g *Guard) anomaly(in Input) string {
	requested := in.Stats.RequestedInWindow.Add(in.Amount)
	threshold := in.Withdrawable.Mul(g.cfg.MagnitudeRatio)
	if requested.GreaterThan(threshold) && in.Amount.GreaterThan(g.cfg.MagnitudeFloor) {
		return fmt.Sprintf("requested %s within %s exceeds %s of withdrawable balance", requested.StringFixed(2), g.cfg.MagnitudeWindow, g.cfg.MagnitudeRatio)
	}

	if in.Stats.ApprovedCount == 0 {
		if in.Amount.GreaterThan(g.cfg.FirstWithdrawalLimit) {
			return fmt.Sprintf("first withdrawal exceeds %s", g.cfg.FirstWithdrawalLimit.StringFixed(2))
		}
		return ""
	}

	overAvg := in.Amount.GreaterThan(in.Stats.ApprovedAvg.Mul(g.cfg.AvgMultiplier))
	overMax := in.Amount.GreaterThan(in.Stats.ApprovedMax.Mul(g.cfg.MaxMultiplier))
	if overAvg && overMax {
		return fmt.Sprintf("amount deviates from history: average %s, max %s", in.Stats.ApprovedAvg.StringFixed(2), in.Stats.ApprovedMax.StringFixed(2))
	}

	return ""
}

func (g *Guard) flag(userID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.suspicion[userID]
	s.level++
	s.lastFlagged = g.now()
	g.suspicion[userID] = s

	return s.level
}

// Suspicion returns the user's current suspicion level
func (g *Guard) Suspicion(userID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspicion[userID].level
}

// Sweep drops keys whose windows fully elapsed and forgets stale suspicion
func (g *Guard) Sweep() (keys int, users int) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for key := range g.requests {
		if g.prune(key, now) == nil {
			keys++
		}
	}

	for userID, s := range g.suspicion {
		if now.Sub(s.lastFlagged) >= g.cfg.SuspicionTTL {
			delete(g.suspicion, userID)
			users++
		}
	}

	return keys, users
}
