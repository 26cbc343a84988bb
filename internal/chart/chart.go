package chart

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"opinionbot/internal/domain"
)

const (
	Width  = 41 // columns for bias -1.0 .. 1.0
	Height = 11 // rows for strength 0.0 .. 1.0

	markerHistory = '.'
	markerLatest  = '@'
	markerOverlap = '*'
)

type Kind int

const (
	KindHistory Kind = iota
	KindReference
	KindLatest
)

type Point struct {
	X     float64 // bias
	Y     float64 // strength
	Label string
	Kind  Kind
}

// Points lists references first, then history in insertion order. The last
// history entry is marked as the latest diagnosis.
func Points(history []domain.HistoryEntry, refs []domain.ReferencePoint) []Point {
	out := make([]Point, 0, len(history)+len(refs))
	for _, r := range refs {
		out = append(out, Point{X: r.BiasScore, Y: r.StrengthScore, Label: r.Label, Kind: KindReference})
	}
	for i, e := range history {
		kind := KindHistory
		if i == len(history)-1 {
			kind = KindLatest
		}
		out = append(out, Point{X: e.BiasScore, Y: e.StrengthScore, Label: e.Genre, Kind: kind})
	}
	return out
}

func cell(p Point) (col, row int) {
	col = int(math.Round((p.X + 1) / 2 * float64(Width-1)))
	row = int(math.Round((1 - p.Y) * float64(Height-1)))
	return clamp(col, 0, Width-1), clamp(row, 0, Height-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func referenceMarker(i int) rune {
	if i < 26 {
		return rune('A' + i)
	}
	return '#'
}

// Render draws a fixed-size text scatter with axis labels and a legend for
// the reference markers.
func Render(points []Point, negativePole, positivePole string) string {
	grid := make([][]rune, Height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", Width))
		grid[r][Width/2] = '|'
	}

	var legend []string
	refIndex := 0
	for _, p := range points {
		col, row := cell(p)
		var m rune
		switch p.Kind {
		case KindReference:
			m = referenceMarker(refIndex)
			legend = append(legend, fmt.Sprintf("%c  %s (%.2f, %.2f)", m, p.Label, p.X, p.Y))
			refIndex++
		case KindLatest:
			m = markerLatest
		default:
			m = markerHistory
		}
		cur := grid[row][col]
		switch {
		case cur == ' ' || cur == '|':
			grid[row][col] = m
		case p.Kind == KindLatest:
			grid[row][col] = markerLatest
		case cur != markerLatest:
			grid[row][col] = markerOverlap
		}
	}

	var b strings.Builder
	for r, line := range grid {
		label := "    "
		switch r {
		case 0:
			label = "1.0 "
		case Height - 1:
			label = "0.0 "
		}
		b.WriteString(label)
		b.WriteString("|")
		b.WriteString(strings.TrimRight(string(line), " "))
		b.WriteString("\n")
	}
	b.WriteString("    +")
	b.WriteString(strings.Repeat("-", Width))
	b.WriteString("\n")
	left := fmt.Sprintf("-1.0 %s", negativePole)
	right := fmt.Sprintf("%s +1.0", positivePole)
	pad := Width + 1 - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if pad < 1 {
		pad = 1
	}
	b.WriteString("    " + left + strings.Repeat(" ", pad) + right + "\n")
	b.WriteString(fmt.Sprintf("%c latest  %c history  %c overlap\n", markerLatest, markerHistory, markerOverlap))
	for _, l := range legend {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}
