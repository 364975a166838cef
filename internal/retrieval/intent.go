package retrieval

import "regexp"

// Intent labels the likely topic of a query for retrieval weighting.
type Intent string

const (
	IntentLocation    Intent = "location"
	IntentOperational Intent = "operational"
	IntentContact     Intent = "contact"
	IntentTechnical   Intent = "technical"
	IntentFinancial   Intent = "financial"
	IntentTiming      Intent = "timing"
)

var intentPatterns = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{IntentLocation, regexp.MustCompile(`(?i)where|near(by)?|close|distance|how far|local`)},
	{IntentOperational, regexp.MustCompile(`(?i)how (do|to|can)|what('s| is) the|instructions|operate|use|turn on|set`)},
	{IntentContact, regexp.MustCompile(`(?i)contact|call|email|phone|who|report|complain|support`)},
	{IntentTechnical, regexp.MustCompile(`(?i)what (type|kind|model|brand)|specification|spec|rated|rating`)},
	{IntentFinancial, regexp.MustCompile(`(?i)cost|price|fee|charge|pay|expense|how much`)},
	{IntentTiming, regexp.MustCompile(`(?i)when|what time|schedule|day|hours|open`)},
}

// DetectIntents returns every intent matched by the query, in fixed order.
// A query can carry several intents; an empty result is normal.
func DetectIntents(query string) []Intent {
	var intents []Intent
	for _, p := range intentPatterns {
		if p.pattern.MatchString(query) {
			intents = append(intents, p.intent)
		}
	}
	return intents
}
