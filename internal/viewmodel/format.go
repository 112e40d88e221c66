package viewmodel

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"popstats/internal/model"
)

const notAvailable = "N/A"

type Sign string

const (
	SignPositive Sign = "positive"
	SignNegative Sign = "negative"
	SignUnknown  Sign = "unknown"
)

type GrowthCard struct {
	Title      string `json:"title"`
	Absolute   string `json:"absolute"`
	Percentage string `json:"percentage"`
	Sign       Sign   `json:"sign"`
}

// GrowthCards renders the 1, 3 and 5 year deltas.
func GrowthCards(metrics model.GrowthMetrics) []GrowthCard {
	return []GrowthCard{
		growthCard("1 Year Growth", metrics.OneYear),
		growthCard("3 Year Growth", metrics.ThreeYear),
		growthCard("5 Year Growth", metrics.FiveYear),
	}
}

func growthCard(title string, delta model.Delta) GrowthCard {
	card := GrowthCard{Title: title, Absolute: notAvailable, Percentage: notAvailable, Sign: SignUnknown}
	if delta.Absolute != nil {
		card.Absolute = signed(*delta.Absolute >= 0) + FormatCount(float64(*delta.Absolute)) + " people"
	}
	if delta.Percentage != nil {
		card.Percentage = FormatPercent(*delta.Percentage, true)
		if *delta.Percentage >= 0 {
			card.Sign = SignPositive
		} else {
			card.Sign = SignNegative
		}
	}
	return card
}

// FormatCount renders a whole number with English digit grouping.
func FormatCount(value float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d", int64(math.Round(value)))
}

func FormatPercent(value float64, withSign bool) string {
	p := message.NewPrinter(language.English)
	prefix := ""
	if withSign {
		prefix = signed(value >= 0)
	}
	return prefix + p.Sprintf("%.2f%%", value)
}

func signed(nonNegative bool) string {
	if nonNegative {
		return "+"
	}
	return ""
}
