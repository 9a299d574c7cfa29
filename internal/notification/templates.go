package notification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/btc-guess/internal/events"
)

// BuildResolutionSubject builds the one-line summary of a resolved guess
func BuildResolutionSubject(e events.GuessResolved) string {
	verdict := "wrong"
	if e.IsCorrect {
		verdict = "right"
	}
	return fmt.Sprintf("Your %s guess was %s (%s point)", e.Direction, verdict, formatDelta(e.ScoreDelta))
}

// BuildResolutionBody builds the plain-text body. Prices are omitted when
// the event does not carry them.
func BuildResolutionBody(username string, score int, e events.GuessResolved) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", username)
	fmt.Fprintf(&b, "You guessed BTC would go %s.\n", e.Direction)
	if e.ReferencePrice > 0 && e.ResolvedPrice > 0 {
		fmt.Fprintf(&b, "The price moved from $%s to $%s.\n",
			formatPrice(e.ReferencePrice), formatPrice(e.ResolvedPrice))
	}
	if e.IsCorrect {
		b.WriteString("You were right!\n")
	} else {
		b.WriteString("Not this time.\n")
	}
	fmt.Fprintf(&b, "\nScore change: %s\nCurrent score: %d\n", formatDelta(e.ScoreDelta), score)
	return b.String()
}

func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// formatPrice renders a USD amount with two decimals and thousands separators
func formatPrice(price float64) string {
	s := strconv.FormatFloat(price, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String() + "." + frac
}
