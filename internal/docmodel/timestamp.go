package docmodel

import "time"

// Timestamp is a date, optionally with a time-of-day and a repeater
// interval, as found in a node's scheduling metadata (DEADLINE:, SCHEDULED:)
// or inline in its body.
type Timestamp struct {
	Date     time.Time
	HasTime  bool
	Repeater *Repeater
}

// Repeater describes a recurring interval (e.g. "+1w", "++1m", ".+1d").
type Repeater struct {
	Kind   RepeaterKind
	Amount int
	Unit   RepeaterUnit
}

// RepeaterKind distinguishes Org-mode's three repeater styles.
type RepeaterKind int

const (
	RepeaterNone RepeaterKind = iota
	RepeaterCumulative
	RepeaterCatchUp
	RepeaterRestart
)

// RepeaterUnit is the time unit a Repeater advances by.
type RepeaterUnit int

const (
	UnitDay RepeaterUnit = iota
	UnitWeek
	UnitMonth
	UnitYear
)

// Next returns the next occurrence of t strictly after from. If t has no
// repeater, Next returns t.Date unchanged regardless of from.
func (t Timestamp) Next(from time.Time) time.Time {
	if t.Repeater == nil {
		return t.Date
	}

	next := t.Date
	for !next.After(from) {
		next = advance(next, t.Repeater.Unit, t.Repeater.Amount)
	}

	return next
}

func advance(d time.Time, unit RepeaterUnit, amount int) time.Time {
	switch unit {
	case UnitDay:
		return d.AddDate(0, 0, amount)
	case UnitWeek:
		return d.AddDate(0, 0, 7*amount)
	case UnitMonth:
		return d.AddDate(0, amount, 0)
	case UnitYear:
		return d.AddDate(amount, 0, 0)
	default:
		return d
	}
}
