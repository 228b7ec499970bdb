package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

// passingContext approves a BUY of 100 @ 20.00 (2% of NL, reserve 78%).
func passingContext() Context {
	last := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return Context{
		Now:            time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		Paper:          false,
		NetLiquidation: d("100000"),
		TotalCash:      d("80000"),
		Positions: []Holding{
			{Symbol: "VOD", Quantity: 500, MarketValue: d("5000"), Sector: "Telecom"},
		},
		TodayBuys:      2,
		LastTradeAt:    &last,
		DailyBaseline:  nd("100500"),
		WeeklyBaseline: nd("101000"),
		Exclusions:     NewExclusionSet(DefaultExclusions()),
		AvgVolume:      nd("250000"),
	}
}

func buy(symbol string, qty int64, price string) Proposal {
	return Proposal{Symbol: symbol, Side: models.SideBuy, Quantity: qty, Price: d(price), Sector: "Energy"}
}

func TestCheckTradeRiskApprovesCleanBuy(t *testing.T) {
	got := CheckTradeRisk(buy("SHEL", 100, "20"), passingContext())
	if !got.Approved || len(got.Reasons) != 0 {
		t.Fatalf("got=%+v want approved with no reasons", got)
	}
}

func TestCheckTradeRiskSellAlwaysApproved(t *testing.T) {
	c := passingContext()
	c.NetLiquidation = decimal.Zero
	c.TodayBuys = 99
	c.AvgVolume = decimal.NullDecimal{}
	p := Proposal{Symbol: "BAT", Side: models.SideSell, Quantity: 1_000_000, Price: d("0.01")}
	got := CheckTradeRisk(p, c)
	if !got.Approved || len(got.Reasons) != 0 {
		t.Fatalf("got=%+v want approved", got)
	}
}

func TestCheckTradeRiskHardCap(t *testing.T) {
	c := passingContext()
	// Large account so only the absolute cap trips.
	c.NetLiquidation = d("10000000")
	c.TotalCash = d("9000000")
	got := CheckTradeRisk(buy("SHEL", 2100, "25"), c)
	if got.Approved {
		t.Fatalf("got approved want denied")
	}
	if len(got.Reasons) != 1 || !strings.Contains(got.Reasons[0], "50000") {
		t.Fatalf("got=%v want one reason naming 50000", got.Reasons)
	}
	if got.Reasons[0] != "Position £52500 exceeds hard cap £50000" {
		t.Fatalf("got=%q", got.Reasons[0])
	}
}

func TestCheckTradeRiskReasons(t *testing.T) {
	tests := []struct {
		name   string
		p      Proposal
		mutate func(*Context)
		want   string
	}{
		{
			name: "excluded symbol",
			p:    buy("bat", 10, "30"),
			want: "Symbol excluded: British American Tobacco",
		},
		{
			name: "excluded sector case insensitive",
			p:    Proposal{Symbol: "XYZ", Side: models.SideBuy, Quantity: 10, Price: d("5"), Sector: "gambling"},
			want: "Sector excluded: Gambling and betting",
		},
		{
			name: "penny stock",
			p:    buy("PEN", 100, "0.05"),
			want: "Price £0.05 below minimum £0.1 (penny stock)",
		},
		{
			name: "position pct",
			p:    buy("SHEL", 300, "20"),
			want: "Position 6.0% exceeds max 5%",
		},
		{
			name:   "cash reserve",
			p:      buy("SHEL", 100, "20"),
			mutate: func(c *Context) { c.TotalCash = d("21000") },
			want:   "Cash reserve would be 19.0% (min 20%)",
		},
		{
			name: "max positions",
			p:    buy("SHEL", 10, "20"),
			mutate: func(c *Context) {
				c.Positions = nil
				for i := 0; i < MaxPositions; i++ {
					c.Positions = append(c.Positions, Holding{Symbol: string(rune('A' + i)), Quantity: 1, MarketValue: d("1")})
				}
			},
			want: "Max positions (10) reached",
		},
		{
			name:   "daily trades",
			p:      buy("SHEL", 10, "20"),
			mutate: func(c *Context) { c.TodayBuys = 10 },
			want:   "Daily trade limit (10) reached",
		},
		{
			name: "interval live",
			p:    buy("SHEL", 10, "20"),
			mutate: func(c *Context) {
				at := c.Now.Add(-5 * time.Minute)
				c.LastTradeAt = &at
			},
			want: "Only 5min since last trade (min 15min)",
		},
		{
			name:   "daily loss",
			p:      buy("SHEL", 10, "20"),
			mutate: func(c *Context) { c.DailyBaseline = nd("102600") },
			want:   "Daily loss limit breached: Daily loss -2.53% exceeds -2%",
		},
		{
			name:   "weekly loss",
			p:      buy("SHEL", 10, "20"),
			mutate: func(c *Context) { c.WeeklyBaseline = nd("106000") },
			want:   "Weekly loss limit breached: Weekly loss -5.66% exceeds -5%",
		},
		{
			name: "sector exposure",
			p:    Proposal{Symbol: "BT", Side: models.SideBuy, Quantity: 100, Price: d("20"), Sector: "telecom"},
			mutate: func(c *Context) {
				c.Positions[0].MarketValue = d("29000")
			},
			want: "Sector telecom exposure 31.0% exceeds max 30%",
		},
		{
			name:   "thin volume",
			p:      buy("SHEL", 10, "20"),
			mutate: func(c *Context) { c.AvgVolume = nd("12000") },
			want:   "Average volume 12000 below minimum 50000",
		},
		{
			name:   "no liquidity data",
			p:      buy("SHEL", 10, "20"),
			mutate: func(c *Context) { c.AvgVolume = decimal.NullDecimal{} },
			want:   "Liquidity data unavailable for SHEL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := passingContext()
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			got := CheckTradeRisk(tt.p, c)
			if got.Approved {
				t.Fatalf("got approved want denied with %q", tt.want)
			}
			found := false
			for _, r := range got.Reasons {
				if r == tt.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("got=%v want reason %q", got.Reasons, tt.want)
			}
		})
	}
}

func TestCheckTradeRiskCollectsAllReasons(t *testing.T) {
	c := passingContext()
	c.TodayBuys = 10
	c.AvgVolume = decimal.NullDecimal{}
	got := CheckTradeRisk(buy("BAT", 100, "20"), c)
	if len(got.Reasons) != 3 {
		t.Fatalf("got=%v want 3 reasons", got.Reasons)
	}
}

func TestCheckTradeRiskAddingToHeldPosition(t *testing.T) {
	c := passingContext()
	c.Positions = nil
	for i := 0; i < MaxPositions-1; i++ {
		c.Positions = append(c.Positions, Holding{Symbol: string(rune('A' + i)), Quantity: 1, MarketValue: d("1")})
	}
	c.Positions = append(c.Positions, Holding{Symbol: "SHEL", Quantity: 10, MarketValue: d("200")})
	got := CheckTradeRisk(buy("SHEL", 10, "20"), c)
	if !got.Approved {
		t.Fatalf("got=%v want approved when adding to a held symbol", got.Reasons)
	}
}

func TestCheckTradeRiskPaperInterval(t *testing.T) {
	c := passingContext()
	c.Paper = true
	at := c.Now.Add(-3 * time.Minute)
	c.LastTradeAt = &at
	if got := CheckTradeRisk(buy("SHEL", 10, "20"), c); !got.Approved {
		t.Fatalf("got=%v want approved in paper mode after 3 minutes", got.Reasons)
	}
	c.Paper = false
	if got := CheckTradeRisk(buy("SHEL", 10, "20"), c); got.Approved {
		t.Fatalf("got approved want denied in live mode after 3 minutes")
	}
}

func TestMaxPositionSize(t *testing.T) {
	tests := []struct {
		name  string
		price string
		nl    string
		cash  string
		want  int64
	}{
		{name: "pct cap", price: "20", nl: "100000", cash: "80000", want: 250},
		{name: "gbp cap", price: "10", nl: "2000000", cash: "1800000", want: 5000},
		{name: "reserve cap", price: "10", nl: "100000", cash: "21000", want: 100},
		{name: "no spare cash", price: "10", nl: "100000", cash: "15000", want: 0},
		{name: "no price", price: "0", nl: "100000", cash: "80000", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxPositionSize(d(tt.price), d(tt.nl), d(tt.cash))
			if got.MaxQuantity != tt.want {
				t.Fatalf("got=%d want=%d", got.MaxQuantity, tt.want)
			}
		})
	}
}

func TestCalculateStopLoss(t *testing.T) {
	got := CalculateStopLoss(d("2450"))
	if !got.Equal(d("2376.5")) {
		t.Fatalf("got=%s want=2376.5", got)
	}
}

func TestHardLimitKeys(t *testing.T) {
	if !IsHardLimitKey(" MAX_POSITION_GBP ") {
		t.Fatalf("expected max_position_gbp to be a hard key")
	}
	if IsHardLimitKey("watchlist_max_size") {
		t.Fatalf("expected watchlist_max_size to be soft")
	}
	l := HardLimits(true)
	if l.MinTradeIntervalMin != 2 || HardLimits(false).MinTradeIntervalMin != 15 {
		t.Fatalf("got paper=%d live=%d want 2/15", l.MinTradeIntervalMin, HardLimits(false).MinTradeIntervalMin)
	}
}
