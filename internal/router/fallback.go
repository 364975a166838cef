package router

import (
	"strings"

	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// The fallback is a fixed, ordered rule chain. Order matters: briefing intent
// is checked before regulatory keywords, which are checked before the
// function table, so "briefing on fire safety" routes to the briefing layer.

var briefingKeywords = []string{
	"briefing",
	"morning update",
	"what do i need to know",
}

var regulatoryKeywords = []string{
	"part b", "part f", "part l", "part m", "bcar", "homebond",
	"building regulation", "fire safety", "ventilation", "gdpr",
	"compliance requirement", "building code", "defects liability",
}

type functionRule struct {
	keyword  string
	function string
}

// fallbackFunctionRules maps question keywords to live-data functions. First
// match wins, so more specific phrases sit above their general cousins.
var fallbackFunctionRules = []functionRule{
	{"registration", "getRegistrationRate"},
	{"registered", "getRegistrationRate"},
	{"handover", "getHandoverPipeline"},
	{"revenue", "getProjectedRevenue"},
	{"pipeline", "getStagePaymentStatus"},
	{"stage", "getStagePaymentStatus"},
	{"payment", "getStagePaymentStatus"},
	{"document", "getDocumentCoverage"},
	{"homeowner", "getHomeownerActivity"},
	{"message", "getHomeownerActivity"},
	{"question", "getMostAskedQuestions"},
	{"asking", "getMostAskedQuestions"},
	{"snag", "getOutstandingSnags"},
	{"maintenance", "getOutstandingSnags"},
	{"kitchen", "getKitchenSelections"},
	{"summary", "getSchemeSummary"},
	{"overview", "getSchemeSummary"},
	{"noticeboard", "getCommunicationsLog"},
	{"communication", "getCommunicationsLog"},
	{"notice", "getCommunicationsLog"},
	{"announcement", "getCommunicationsLog"},
	{"unit type", "getUnitTypeBreakdown"},
	{"bedroom", "getUnitTypeBreakdown"},
	{"layout", "getUnitTypeBreakdown"},
	{"mix", "getUnitTypeBreakdown"},
	{"grant", "getSEAIGrants"},
	{"seai", "getSEAIGrants"},
	{"solar", "getSEAIGrants"},
	{"ev charger", "getSEAIGrants"},
	{"insulation grant", "getSEAIGrants"},
	{"heat pump grant", "getSEAIGrants"},
	{"energy grant", "getSEAIGrants"},
	{"retrofit", "getSEAIGrants"},
}

// defaultFunction anchors the hybrid decision returned when nothing matches.
const defaultFunction = "getSchemeSummary"

// fallbackRoute classifies a question with deterministic keyword rules. It
// never fails: the worst case is the default hybrid decision.
func fallbackRoute(question string) *model.RouteDecision {
	lower := strings.ToLower(question)

	for _, kw := range briefingKeywords {
		if strings.Contains(lower, kw) {
			return &model.RouteDecision{Layers: []model.Layer{model.LayerBriefing}}
		}
	}

	for _, kw := range regulatoryKeywords {
		if strings.Contains(lower, kw) {
			return &model.RouteDecision{
				Layers:      []model.Layer{model.LayerRegulatory},
				SearchQuery: question,
				Regulatory:  true,
			}
		}
	}

	for _, rule := range fallbackFunctionRules {
		if strings.Contains(lower, rule.keyword) {
			return &model.RouteDecision{
				Layers:    []model.Layer{model.LayerData},
				Functions: []string{rule.function},
			}
		}
	}

	return &model.RouteDecision{
		Layers:      []model.Layer{model.LayerData, model.LayerDocuments},
		Functions:   []string{defaultFunction},
		SearchQuery: question,
	}
}
