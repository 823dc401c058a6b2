package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Prices render with the rupee sign, two decimals and Indian digit grouping,
// and parse back to the rounded amount.
func TestProperty_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	indianPattern := regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

	properties.Property("FormatIndianCurrency produces valid Indian format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			prefix := "₹"
			if amount < 0 {
				prefix = "-₹"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("Expected %s prefix for %f, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "₹"), ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}
			if !indianPattern.MatchString(parts[0]) {
				t.Logf("Invalid Indian format for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatIndianCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)
			plain := strings.ReplaceAll(strings.Replace(formatted, "₹", "", 1), ",", "")
			parsed, err := strconv.ParseFloat(plain, 64)
			if err != nil {
				t.Logf("Cannot parse %s: %v", formatted, err)
				return false
			}
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

// The weight change arrow always agrees with the direction of the move.
func TestProperty_WeightChangeDirection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("arrow matches sign of change", prop.ForAll(
		func(oldWeight, newWeight float64) bool {
			formatted := FormatWeightChange(oldWeight, newWeight)
			switch {
			case newWeight-oldWeight > 1e-6:
				return strings.HasPrefix(formatted, "↑")
			case oldWeight-newWeight > 1e-6:
				return strings.HasPrefix(formatted, "↓")
			default:
				return strings.HasPrefix(formatted, "→")
			}
		},
		gen.Float64Range(0.01, 1),
		gen.Float64Range(0.01, 1),
	))

	properties.Property("truncation never exceeds the limit", prop.ForAll(
		func(s string, max int) bool {
			out := TruncateString(s, max)
			if utf8.RuneCountInString(s) <= max {
				return out == s
			}
			return utf8.RuneCountInString(out) == max
		},
		gen.AnyString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestIndianNumberFormatExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0.00"},
		{458.5, "₹458.50"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},      // 1 lakh
		{10000000, "₹1,00,00,000.00"}, // 1 crore
		{-1234.56, "-₹1,234.56"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := FormatIndianCurrency(tc.amount); result != tc.expected {
				t.Errorf("FormatIndianCurrency(%f) = %s, want %s", tc.amount, result, tc.expected)
			}
		})
	}
}

func TestFormatWeightChangeExamples(t *testing.T) {
	testCases := []struct {
		old, new float64
		expected string
	}{
		{0.35, 0.315, "↓ 31.5% (-10.00%)"},
		{0.25, 0.26, "↑ 26.0% (+4.00%)"},
		{0.05, 0.05, "→ 5.0% (0.00%)"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := FormatWeightChange(tc.old, tc.new); result != tc.expected {
				t.Errorf("FormatWeightChange(%f, %f) = %s, want %s", tc.old, tc.new, result, tc.expected)
			}
		})
	}
}

func TestFormatDateTimeNever(t *testing.T) {
	if got := FormatDateTime(time.Time{}); got != "never" {
		t.Errorf("FormatDateTime(zero) = %s, want never", got)
	}
}
