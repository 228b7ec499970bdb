package clock

import (
	"sync"
	"time"
	_ "time/tzdata"
)

type Phase string

const (
	PhaseClosed     Phase = "closed"
	PhasePreMarket  Phase = "pre-market"
	PhaseOpen       Phase = "open"
	PhaseWindDown   Phase = "wind-down"
	PhasePostMarket Phase = "post-market"
	PhaseResearch   Phase = "research"
)

// ExchangeTimezone is the IANA zone every phase window is expressed in.
const ExchangeTimezone = "Europe/London"

// window is a half-open [start, end) range in minutes after local midnight.
type window struct {
	start int
	end   int
}

func (w window) contains(minute int) bool {
	return minute >= w.start && minute < w.end
}

var (
	preMarketWindow  = window{start: 7*60 + 30, end: 8 * 60}
	openWindow       = window{start: 8 * 60, end: 16*60 + 25}
	windDownWindow   = window{start: 16*60 + 25, end: 16*60 + 30}
	postMarketWindow = window{start: 16*60 + 30, end: 17 * 60}
	researchWindow   = window{start: 18 * 60, end: 22 * 60}
)

var (
	locOnce sync.Once
	loc     *time.Location
)

// Location returns the exchange zone, falling back to UTC when tzdata is
// missing from the host.
func Location() *time.Location {
	locOnce.Do(func() {
		l, err := time.LoadLocation(ExchangeTimezone)
		if err != nil {
			l = time.UTC
		}
		loc = l
	})
	return loc
}

// PhaseAt maps an instant to exactly one market phase.
func PhaseAt(t time.Time) Phase {
	local := t.In(Location())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return PhaseClosed
	}
	minute := local.Hour()*60 + local.Minute()
	switch {
	case preMarketWindow.contains(minute):
		return PhasePreMarket
	case windDownWindow.contains(minute):
		return PhaseWindDown
	case openWindow.contains(minute):
		return PhaseOpen
	case postMarketWindow.contains(minute):
		return PhasePostMarket
	case researchWindow.contains(minute):
		return PhaseResearch
	default:
		return PhaseClosed
	}
}

// LocalDate is the exchange calendar day of t in 2006-01-02 form.
func LocalDate(t time.Time) string {
	return t.In(Location()).Format("2006-01-02")
}

// StartOfDay returns local midnight of the exchange day containing t.
func StartOfDay(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location())
}
