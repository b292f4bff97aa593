package telemetry

import (
	"fmt"
	"math"
)

// Floor is the level, in dBFS, at and below which a meter reads empty.
const Floor = -60.0

// Severity buckets a meter fill ratio.
type Severity int

const (
	Nominal Severity = iota
	Elevated
	Hot
)

func (s Severity) String() string {
	switch s {
	case Elevated:
		return "elevated"
	case Hot:
		return "hot"
	default:
		return "nominal"
	}
}

// Display is what a level meter renders.
type Display struct {
	RatioPercent float64  `json:"ratio_percent"`
	Severity     Severity `json:"-"`
	Label        string   `json:"severity"`
}

// LevelToDisplay maps a dBFS level onto a 0..100 fill ratio. Nil (no signal)
// and anything at or below Floor read as an empty, nominal meter.
func LevelToDisplay(db *float64) Display {
	if db == nil || math.IsNaN(*db) || *db <= Floor {
		return Display{Severity: Nominal, Label: Nominal.String()}
	}
	ratio := (*db - Floor) / -Floor * 100
	ratio = math.Max(0, math.Min(100, ratio))
	sev := SeverityFor(ratio)
	return Display{RatioPercent: ratio, Severity: sev, Label: sev.String()}
}

// SeverityFor returns the bucket of a fill ratio: up to 60 nominal, up to 85
// elevated, hot above.
func SeverityFor(ratio float64) Severity {
	switch {
	case ratio <= 60:
		return Nominal
	case ratio <= 85:
		return Elevated
	default:
		return Hot
	}
}

// FormatDB renders a level for humans, "--" when there is none.
func FormatDB(db *float64) string {
	if db == nil || math.IsNaN(*db) {
		return "--"
	}
	return fmt.Sprintf("%.1f dBFS", *db)
}
