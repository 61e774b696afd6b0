package season

import (
	"time"
)

type Action string

const (
	ActionProceed Action = "proceed"
	ActionSkip    Action = "skip"
)

type Reason string

const (
	ReasonForced     Reason = "forced"
	ReasonMissing    Reason = "missing"
	ReasonUnreadable Reason = "unreadable"
	ReasonRecent     Reason = "recent"
	ReasonExpired    Reason = "expired"
	ReasonFresh      Reason = "fresh"
)

const (
	DefaultRecentYears = 1
	DefaultMaxAge      = 30 * 24 * time.Hour
)

// Decision is the outcome of a staleness check. The reason is kept so
// that logs and results can say why a season was fetched or skipped.
type Decision struct {
	Action Action
	Reason Reason
}

func (d Decision) ShouldUpdate() bool {
	return d.Action == ActionProceed
}

func proceed(reason Reason) Decision {
	return Decision{Action: ActionProceed, Reason: reason}
}

func skip(reason Reason) Decision {
	return Decision{Action: ActionSkip, Reason: reason}
}

// Policy decides whether a season document is stale.
//
// Seasons from the current year or the RecentYears before it are always
// refetched because their ratings keep moving. Older seasons are refetched
// once their document is older than MaxAge.
type Policy struct {
	RecentYears int
	MaxAge      time.Duration
}

func NewPolicy() Policy {
	return Policy{
		RecentYears: DefaultRecentYears,
		MaxAge:      DefaultMaxAge,
	}
}

// Decide has no side effects. month does not currently affect the outcome.
func (p Policy) Decide(now time.Time, year, month int, force bool, state State) Decision {
	if force {
		return proceed(ReasonForced)
	}
	if !state.Exists {
		return proceed(ReasonMissing)
	}
	if !state.Readable {
		return proceed(ReasonUnreadable)
	}
	if year >= now.Year()-p.RecentYears {
		return proceed(ReasonRecent)
	}
	if now.Sub(state.LastUpdate) > p.MaxAge {
		return proceed(ReasonExpired)
	}
	return skip(ReasonFresh)
}
