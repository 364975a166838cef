// Package retrieval prepares questions for the document and regulatory
// search collaborators.
package retrieval

import (
	"regexp"
	"strings"
	"sync"
)

type expansion struct {
	term    string
	related []string
}

// queryExpansions maps common terms to related concepts so retrieval still
// finds relevant passages when exact wording differs. An ordered slice, not
// a map: expansion output is capped, so collection order must be stable.
var queryExpansions = []expansion{
	// Energy and heating
	{"ber", []string{"building energy rating", "energy rating", "energy efficiency", "a-rated", "nzeb"}},
	{"heating", []string{"heat pump", "boiler", "radiator", "underfloor heating", "thermostat", "temperature"}},
	{"heat pump", []string{"daikin", "air to water", "heating system", "hot water"}},
	{"hot water", []string{"cylinder", "immersion", "water heater", "heating"}},
	{"insulation", []string{"u-value", "thermal", "heat loss", "energy efficiency"}},
	{"solar", []string{"pv panels", "photovoltaic", "renewable", "electricity generation"}},
	{"ventilation", []string{"mvhr", "air quality", "extract fan", "humidity", "condensation"}},

	// Transport
	{"bus", []string{"public transport", "route", "bus stop", "commute", "timetable"}},
	{"train", []string{"rail", "station", "dart", "commute", "public transport"}},
	{"transport", []string{"bus", "train", "commute", "travel", "getting around"}},
	{"parking", []string{"car space", "garage", "driveway", "visitor parking", "ev charging"}},

	// Schools
	{"school", []string{"primary school", "secondary school", "education", "children"}},
	{"creche", []string{"childcare", "daycare", "nursery", "preschool"}},

	// Shopping and healthcare
	{"shop", []string{"supermarket", "shopping centre", "retail", "store", "convenience"}},
	{"supermarket", []string{"shopping", "groceries", "tesco", "dunnes", "aldi", "lidl"}},
	{"doctor", []string{"gp", "medical centre", "healthcare", "clinic"}},
	{"gp", []string{"doctor", "medical", "health centre", "surgery"}},
	{"pharmacy", []string{"chemist", "prescription", "medication"}},

	// Property features
	{"size", []string{"square feet", "square metres", "floor area", "dimensions", "sq ft", "sq m"}},
	{"bedroom", []string{"bed", "room", "accommodation", "sleeping"}},
	{"bathroom", []string{"ensuite", "shower", "toilet", "wc"}},
	{"kitchen", []string{"appliances", "oven", "hob", "cooking"}},
	{"garden", []string{"outdoor", "patio", "landscaping", "back garden", "front garden"}},

	// Maintenance
	{"repair", []string{"fix", "maintenance", "broken", "defect", "issue"}},
	{"warranty", []string{"guarantee", "homebond", "defect", "cover", "protection"}},
	{"defect", []string{"snag", "issue", "problem", "fault", "repair"}},

	// Management and utilities
	{"management", []string{"management company", "omc", "service charge", "fees"}},
	{"fees", []string{"service charge", "management fee", "costs", "annual charge"}},
	{"bin", []string{"waste", "rubbish", "recycling", "collection", "refuse"}},
	{"broadband", []string{"internet", "wifi", "fibre", "connection"}},

	// Safety, legal, financial
	{"alarm", []string{"security", "intruder", "burglar", "monitoring"}},
	{"fire", []string{"smoke detector", "fire alarm", "emergency", "safety"}},
	{"price", []string{"cost", "payment", "purchase price", "value"}},
	{"mortgage", []string{"loan", "finance", "bank", "lending"}},
	{"deposit", []string{"booking deposit", "contract deposit", "payment"}},
	{"solicitor", []string{"legal", "conveyancing", "lawyer", "contract"}},
}

const maxExpansionTerms = 5

var (
	termRegexOnce sync.Once
	termRegexes   map[string]*regexp.Regexp
)

func termRegex(term string) *regexp.Regexp {
	termRegexOnce.Do(func() {
		termRegexes = make(map[string]*regexp.Regexp, len(queryExpansions))
		for _, e := range queryExpansions {
			termRegexes[e.term] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(e.term) + `\b`)
		}
	})
	return termRegexes[term]
}

// ExpandQuery appends related terms to the query for better recall. The
// output is capped so expansions never drown the original wording.
func ExpandQuery(query string) string {
	lower := strings.ToLower(query)

	var expansions []string
	for _, e := range queryExpansions {
		if !termRegex(e.term).MatchString(query) {
			continue
		}
		for _, related := range e.related {
			if len(expansions) >= maxExpansionTerms {
				break
			}
			if !strings.Contains(lower, strings.ToLower(related)) {
				expansions = append(expansions, related)
			}
		}
		if len(expansions) >= maxExpansionTerms {
			break
		}
	}

	if len(expansions) == 0 {
		return query
	}
	return query + " (related: " + strings.Join(expansions, ", ") + ")"
}
