package model

// Layer is a category of knowledge a question can be routed to.
type Layer string

const (
	// LayerData answers from live operational data via named retrieval functions.
	LayerData Layer = "data"
	// LayerDocuments answers from scheme document search.
	LayerDocuments Layer = "documents"
	// LayerUnit answers from unit-specific facts via the canonical resolver.
	LayerUnit Layer = "unit"
	// LayerRegulatory answers from the building-regulations corpus.
	LayerRegulatory Layer = "regulatory"
	// LayerBriefing produces the daily briefing summary.
	LayerBriefing Layer = "briefing"
)

// validLayers is the closed set accepted from the classifier.
var validLayers = map[Layer]bool{
	LayerData:       true,
	LayerDocuments:  true,
	LayerUnit:       true,
	LayerRegulatory: true,
	LayerBriefing:   true,
}

// Valid reports whether the layer is a member of the closed set.
func (l Layer) Valid() bool {
	return validLayers[l]
}

// RouteDecision is the router's output for one question. Ephemeral; produced
// fresh per query and never persisted.
type RouteDecision struct {
	Layers      []Layer  `json:"layers"`
	Functions   []string `json:"functions,omitempty"`
	SearchQuery string   `json:"search_query,omitempty"`
	Regulatory  bool     `json:"regulatory"`
}

// HasLayer reports whether the decision includes the given layer.
func (d RouteDecision) HasLayer(l Layer) bool {
	for _, x := range d.Layers {
		if x == l {
			return true
		}
	}
	return false
}

// QueryContext is the small context summary handed to the classifier.
type QueryContext struct {
	SchemeName string `json:"scheme_name,omitempty"`
	TotalUnits int    `json:"total_units,omitempty"`
	HouseType  string `json:"house_type,omitempty"`
}
