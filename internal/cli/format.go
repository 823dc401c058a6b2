package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"alpha-auditor/internal/models"
)

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	formatted := formatIndianNumber(parts[0])

	result := "₹" + formatted + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber formats an integer string in Indian numbering system.
// Indian system: 1,00,00,000 (1 crore) vs Western: 10,000,000
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right (hundreds)
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2 (thousands, lakhs, crores)
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatScore formats a unit-interval score.
func FormatScore(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// FormatWeight formats a weight as a percentage of the ensemble.
func FormatWeight(w float64) string {
	return fmt.Sprintf("%.1f%%", w*100)
}

// WeightArrow returns ↑, ↓ or → for a weight move.
func WeightArrow(oldWeight, newWeight float64) string {
	switch {
	case newWeight-oldWeight > models.WeightEpsilon:
		return "↑"
	case oldWeight-newWeight > models.WeightEpsilon:
		return "↓"
	default:
		return "→"
	}
}

// FormatWeightChange formats old → new with the relative change.
func FormatWeightChange(oldWeight, newWeight float64) string {
	pct := 0.0
	if oldWeight > 0 {
		pct = (newWeight - oldWeight) / oldWeight * 100
	}
	if math.Abs(pct) < 0.005 {
		pct = 0
	}
	return fmt.Sprintf("%s %s (%s)", WeightArrow(oldWeight, newWeight), FormatWeight(newWeight), FormatPercent(pct))
}

// FormatDate formats a calendar date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

// FormatDateTime formats a timestamp, or "never" for the zero time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
