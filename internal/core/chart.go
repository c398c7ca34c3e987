package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// ChartPalette is cycled across pie slices.
var ChartPalette = []string{"#2563eb", "#f97316", "#10b981", "#9333ea", "#f43f5e", "#14b8a6", "#fbbf24"}

// Pie geometry in SVG user units (viewBox 0 0 200 200).
const (
	pieCenter = 100.0
	pieRadius = 90.0
)

// PieSlice is one category of the spending chart.
type PieSlice struct {
	Label   string
	Amount  decimal.Decimal
	Percent float64
	Color   string
	// Path is the SVG path for the wedge. Full is set instead when a single
	// category holds the whole total, since an arc cannot close on itself.
	Path string
	Full bool
}

// PieChart is the server-side rendering of category totals.
type PieChart struct {
	Slices []PieSlice
	Total  decimal.Decimal
}

// Empty reports whether there is nothing to draw.
func (p PieChart) Empty() bool { return len(p.Slices) == 0 }

// NewPieChart builds wedges for every positive total, largest first.
func NewPieChart(totals map[string]decimal.Decimal) PieChart {
	rows := make([]CategoryAmount, 0, len(totals))
	total := decimal.Zero
	for k, v := range totals {
		if !v.IsPositive() {
			continue
		}
		rows = append(rows, CategoryAmount{Category: k, Amount: v})
		total = total.Add(v)
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Amount.Cmp(rows[j].Amount); c != 0 {
			return c > 0
		}
		return rows[i].Category < rows[j].Category
	})

	chart := PieChart{Total: total}
	if len(rows) == 0 {
		return chart
	}

	totalF := total.InexactFloat64()
	angle := -math.Pi / 2
	for i, r := range rows {
		share := r.Amount.InexactFloat64() / totalF
		slice := PieSlice{
			Label:   r.Category,
			Amount:  r.Amount,
			Percent: math.Round(share*1000) / 10,
			Color:   ChartPalette[i%len(ChartPalette)],
		}
		if len(rows) == 1 {
			slice.Full = true
		} else {
			end := angle + share*2*math.Pi
			slice.Path = wedgePath(angle, end)
			angle = end
		}
		chart.Slices = append(chart.Slices, slice)
	}
	return chart
}

func wedgePath(start, end float64) string {
	x1 := pieCenter + pieRadius*math.Cos(start)
	y1 := pieCenter + pieRadius*math.Sin(start)
	x2 := pieCenter + pieRadius*math.Cos(end)
	y2 := pieCenter + pieRadius*math.Sin(end)
	large := 0
	if end-start > math.Pi {
		large = 1
	}
	return fmt.Sprintf("M %.2f %.2f L %.2f %.2f A %.0f %.0f 0 %d 1 %.2f %.2f Z",
		pieCenter, pieCenter, x1, y1, pieRadius, pieRadius, large, x2, y2)
}
