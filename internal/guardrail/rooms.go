package guardrail

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type roomMapping struct {
	key      string
	variants []string
}

// roomMappings maps canonical room keys to the phrasings purchasers use.
// The slice is ordered most-specific first: "kitchen dining" must match
// before "kitchen", "bedroom 1" before "bathroom" catches "master bathroom".
var roomMappings = []roomMapping{
	{"kitchen_dining", []string{"kitchen dining", "kitchen/dining", "open plan kitchen", "kitchen and dining"}},
	{"bedroom_1", []string{"bedroom 1", "bedroom one", "main bedroom", "master bedroom", "primary bedroom"}},
	{"bedroom_2", []string{"bedroom 2", "bedroom two", "second bedroom"}},
	{"bedroom_3", []string{"bedroom 3", "bedroom three", "third bedroom"}},
	{"bedroom_4", []string{"bedroom 4", "bedroom four", "fourth bedroom"}},
	{"living_room", []string{"living room", "sitting room", "lounge", "front room", "living area", "reception room"}},
	{"entrance_hall", []string{"hall", "entrance", "hallway", "entrance hall", "front hall", "foyer"}},
	{"ensuite", []string{"ensuite", "en-suite", "en suite", "master bathroom", "master ensuite", "ensuite bathroom"}},
	{"toilet", []string{"toilet", "wc", "downstairs toilet", "ground floor toilet", "cloakroom", "guest toilet", "powder room"}},
	{"kitchen", []string{"kitchen"}},
	{"dining", []string{"dining room", "dining area", "dining"}},
	{"utility", []string{"utility", "utility room", "laundry", "storage"}},
	{"bathroom", []string{"bathroom", "main bathroom", "family bathroom", "upstairs bathroom"}},
	{"landing", []string{"landing", "upstairs landing", "upper landing", "stairs landing"}},
	{"garage", []string{"garage", "car port", "carport"}},
	{"study", []string{"study", "office", "home office", "box room"}},
	{"hotpress", []string{"hotpress", "hot press", "airing cupboard", "boiler room"}},
}

// ExtractRoomKey finds the canonical room key a question refers to, or ""
// when no room is mentioned.
func ExtractRoomKey(question string) string {
	lower := strings.ToLower(question)
	for _, m := range roomMappings {
		for _, variant := range m.variants {
			if strings.Contains(lower, variant) {
				return m.key
			}
		}
	}
	return ""
}

var titleCaser = cases.Title(language.English)

// DisplayRoomName renders a room key for user-facing text: bedroom_1 becomes
// "Bedroom 1".
func DisplayRoomName(roomKey string) string {
	return titleCaser.String(strings.ReplaceAll(roomKey, "_", " "))
}
