package catalog

import (
	"fmt"
	"math/rand"
	"strings"
)

// Normalize renders an offer as the plain-text block fed to the
// relevance scorer. Header pairs with empty titles are skipped.
func Normalize(o Offer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "---offer_id %d start---\n", o.ID)
	fmt.Fprintf(&b, "name: %s\n", o.Name)
	if o.OfferType.Type != "" {
		fmt.Fprintf(&b, "type: %s\n", o.OfferType.Type)
	}
	for _, h := range o.Headers {
		title := strings.TrimSpace(h.Title)
		if title == "" {
			continue
		}
		value := strings.TrimSpace(substitutePlaceholders(h.Value))
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%s: %s\n", title, value)
	}
	fmt.Fprintf(&b, "---offer_id %d end---\n", o.ID)
	return b.String()
}

// Display header values may carry {time} and {val} placeholders that the
// upstream feed expects consumers to fill with plausible numbers.
func substitutePlaceholders(v string) string {
	if strings.Contains(v, "{time}") {
		v = strings.ReplaceAll(v, "{time}", fmt.Sprintf("%d", randomBetween(5, 25)))
	}
	if strings.Contains(v, "{val}") {
		v = strings.ReplaceAll(v, "{val}", fmt.Sprintf("%d", randomBetween(90, 99)))
	}
	return v
}

func randomBetween(min, max int) int {
	return min + rand.Intn(max-min+1)
}
