package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/models"
)

// Proposal is a trade the planning layer wants to make.
type Proposal struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Sector   string          `json:"sector,omitempty"`
	SICCode  string          `json:"sic_code,omitempty"`
}

func (p Proposal) Value() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(p.Quantity))
}

type Decision struct {
	Approved bool     `json:"approved"`
	Reasons  []string `json:"reasons"`
}

type Holding struct {
	Symbol      string
	Quantity    int64
	MarketValue decimal.Decimal
	Sector      string
}

// Context is everything CheckTradeRisk looks at. Building it is the caller's
// job; the check itself does no I/O.
type Context struct {
	Now            time.Time
	Paper          bool
	NetLiquidation decimal.Decimal
	TotalCash      decimal.Decimal
	Positions      []Holding

	TodayBuys   int64
	LastTradeAt *time.Time

	// DailyBaseline is the latest daily snapshot value; WeeklyBaseline the
	// oldest snapshot within the trailing week.
	DailyBaseline  decimal.NullDecimal
	WeeklyBaseline decimal.NullDecimal

	Exclusions *ExclusionSet
	// AvgVolume is invalid when the liquidity feed had no data.
	AvgVolume decimal.NullDecimal
}

var hundred = decimal.NewFromInt(100)

// CheckTradeRisk approves every SELL. A BUY is evaluated against every limit
// and all failing reasons are returned.
func CheckTradeRisk(p Proposal, c Context) Decision {
	if strings.EqualFold(p.Side, models.SideSell) {
		return Decision{Approved: true, Reasons: []string{}}
	}

	reasons := []string{}
	add := func(format string, args ...any) {
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if !strings.EqualFold(p.Side, models.SideBuy) {
		add("Unsupported side %q", p.Side)
	}
	if p.Quantity <= 0 {
		add("Quantity must be positive")
	}

	if r, ok := c.Exclusions.Symbol(symbol); ok {
		add("Symbol excluded: %s", r)
	}
	if r, ok := c.Exclusions.Sector(p.Sector); ok {
		add("Sector excluded: %s", r)
	}
	if p.SICCode != "" {
		if r, ok := c.Exclusions.SICCode(p.SICCode); ok {
			add("SIC code excluded: %s", r)
		}
	}

	if !p.Price.IsPositive() {
		add("Price unavailable for %s", symbol)
	} else if p.Price.LessThan(decimal.NewFromFloat(MinPriceGBP)) {
		add("Price £%s below minimum £%s (penny stock)", p.Price.String(), decimal.NewFromFloat(MinPriceGBP).String())
	}

	value := p.Value()
	nl := c.NetLiquidation
	if !nl.IsPositive() {
		add("Net liquidation unavailable")
	} else {
		pct := value.Div(nl).Mul(hundred)
		if pct.GreaterThan(decimal.NewFromInt(MaxPositionPct)) {
			add("Position %s%% exceeds max %d%%", pct.StringFixed(1), MaxPositionPct)
		}

		reserve := c.TotalCash.Sub(value).Div(nl).Mul(hundred)
		if reserve.LessThan(decimal.NewFromInt(MinCashReservePct)) {
			add("Cash reserve would be %s%% (min %d%%)", reserve.StringFixed(1), MinCashReservePct)
		}

		if p.Sector != "" {
			exposure := value
			for _, h := range c.Positions {
				if strings.EqualFold(h.Sector, p.Sector) {
					exposure = exposure.Add(h.MarketValue)
				}
			}
			sectorPct := exposure.Div(nl).Mul(hundred)
			if sectorPct.GreaterThan(decimal.NewFromInt(MaxSectorExposurePct)) {
				add("Sector %s exposure %s%% exceeds max %d%%", p.Sector, sectorPct.StringFixed(1), MaxSectorExposurePct)
			}
		}

		if r, breached := lossBreach(nl, c.DailyBaseline, DailyLossLimitPct); breached {
			add("Daily loss limit breached: Daily loss %s", r)
		}
		if r, breached := lossBreach(nl, c.WeeklyBaseline, WeeklyLossLimitPct); breached {
			add("Weekly loss limit breached: Weekly loss %s", r)
		}
	}
	if value.GreaterThan(decimal.NewFromInt(MaxPositionGBP)) {
		add("Position £%s exceeds hard cap £%d", value.StringFixed(0), MaxPositionGBP)
	}

	held := false
	for _, h := range c.Positions {
		if strings.EqualFold(h.Symbol, symbol) && h.Quantity > 0 {
			held = true
			break
		}
	}
	if !held && len(c.Positions) >= MaxPositions {
		add("Max positions (%d) reached", MaxPositions)
	}

	if c.TodayBuys >= MaxTradesPerDay {
		add("Daily trade limit (%d) reached", MaxTradesPerDay)
	}

	if c.LastTradeAt != nil && !c.Now.IsZero() {
		interval := TradeIntervalMin(c.Paper)
		mins := c.Now.Sub(*c.LastTradeAt).Minutes()
		if mins < float64(interval) {
			add("Only %smin since last trade (min %dmin)", decimal.NewFromFloat(mins).StringFixed(0), interval)
		}
	}

	if !c.AvgVolume.Valid {
		add("Liquidity data unavailable for %s", symbol)
	} else if c.AvgVolume.Decimal.LessThan(decimal.NewFromInt(MinAvgVolume)) {
		add("Average volume %s below minimum %d", c.AvgVolume.Decimal.StringFixed(0), MinAvgVolume)
	}

	return Decision{Approved: len(reasons) == 0, Reasons: reasons}
}

func lossBreach(current decimal.Decimal, baseline decimal.NullDecimal, limitPct int64) (string, bool) {
	if !baseline.Valid || !baseline.Decimal.IsPositive() {
		return "", false
	}
	change := current.Sub(baseline.Decimal).Div(baseline.Decimal).Mul(hundred)
	if change.GreaterThanOrEqual(decimal.NewFromInt(-limitPct)) {
		return "", false
	}
	return fmt.Sprintf("%s%% exceeds -%d%%", change.StringFixed(2), limitPct), true
}

// PositionSize is the largest BUY the hard limits allow at a price.
type PositionSize struct {
	MaxQuantity int64           `json:"max_quantity"`
	MaxValue    decimal.Decimal `json:"max_value"`
}

func MaxPositionSize(price, netLiquidation, totalCash decimal.Decimal) PositionSize {
	if !price.IsPositive() || !netLiquidation.IsPositive() {
		return PositionSize{MaxValue: decimal.Zero}
	}
	byPct := netLiquidation.Mul(decimal.NewFromInt(MaxPositionPct)).Div(hundred)
	byReserve := totalCash.Sub(netLiquidation.Mul(decimal.NewFromInt(MinCashReservePct)).Div(hundred))
	if byReserve.IsNegative() {
		byReserve = decimal.Zero
	}
	maxValue := decimal.Min(byPct, decimal.NewFromInt(MaxPositionGBP), byReserve)
	qty := maxValue.Div(price).Floor()
	return PositionSize{MaxQuantity: qty.IntPart(), MaxValue: qty.Mul(price)}
}
