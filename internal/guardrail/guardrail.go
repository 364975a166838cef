// Package guardrail intercepts room-dimension questions and answers them
// from canonical facts, so a language model can never invent measurements.
package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/resolver"
)

// AnswerThreshold is the minimum fact confidence for a grounded dimension
// answer. Below it the guardrail still intercepts but points at the floor
// plan instead.
const AnswerThreshold = 0.75

// Settings control the dimension feature per tenant.
type Settings struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	ShowDisclaimer   bool   `json:"show_disclaimer" yaml:"show_disclaimer"`
	AttachFloorplans bool   `json:"attach_floorplans" yaml:"attach_floorplans"`
	DisclaimerText   string `json:"disclaimer_text" yaml:"disclaimer_text"`
}

// DefaultSettings returns the out-of-the-box dimension settings.
func DefaultSettings() Settings {
	return Settings{
		Enabled:          true,
		ShowDisclaimer:   true,
		AttachFloorplans: true,
		DisclaimerText: "Please note: These dimensions are provided as a guide only. " +
			"For exact measurements, please refer to the official floor plans and architectural drawings. " +
			"We recommend verifying dimensions independently before making any purchasing decisions based on room sizes.",
	}
}

var dimensionQuestionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)what|how\s+big|what\s+size|what\s+are\s+the\s+dimension|tell\s+me\s+the\s+size|what\s+is\s+the\s+size|how\s+large`),
	regexp.MustCompile(`(?i)floor\s+area|room\s+(?:size|dimension)|sqm|square\s+met(?:er|re)s?\s+(?:of|for|in)`),
	regexp.MustCompile(`(?i)how\s+(?:big|large|wide|long)\s+is\s+(?:the|my)`),
	regexp.MustCompile(`(?i)size\s+(?:of|is)\s+(?:the|my)`),
	regexp.MustCompile(`(?i)dimension(?:s)?\s+(?:of|for)`),
}

var dimensionExclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:ber|energy)\s+rating`),
	regexp.MustCompile(`(?i)(?:heating|cooling|ventilation)\s+system`),
	regexp.MustCompile(`(?i)warranty|guarantee`),
	regexp.MustCompile(`(?i)when|who|what\s+company|supplier`),
}

var (
	dimensionValueRegex = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:m\b|meters?|metres?|square\s*met(?:er|re)s?)`)
	dimensionCrossRegex = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:m\b|meters?|metres?)?\s*(?:x|by)\s*(\d+(?:\.\d+)?)\s*(?:m\b|meters?|metres?)?`)
	areaClaimRegex      = regexp.MustCompile(`(?i)approximately\s+\d+(?:\.\d+)?\s*sqm|floor\s+area\s+of\s+(?:about\s+)?\d+(?:\.\d+)?`)
)

// IsDimensionQuestion reports whether the question asks for a room's size.
// It needs both a room reference and a dimension keyword, and exclusion
// patterns veto questions about ratings, systems, and suppliers.
func IsDimensionQuestion(question string) bool {
	for _, p := range dimensionExclusionPatterns {
		if p.MatchString(question) {
			return false
		}
	}
	if ExtractRoomKey(question) == "" {
		return false
	}
	for _, p := range dimensionQuestionPatterns {
		if p.MatchString(question) {
			return true
		}
	}
	return false
}

// ContainsFabricatedDimensions detects measurement claims in generated text
// when no canonical lookup backs them.
func ContainsFabricatedDimensions(text string, lookupSuccessful bool) bool {
	if lookupSuccessful {
		return false
	}
	if len(dimensionValueRegex.FindAllString(text, -1)) >= 2 {
		return true
	}
	if dimensionCrossRegex.MatchString(text) {
		return true
	}
	return areaClaimRegex.MatchString(text)
}

// Result is the guardrail's verdict on one question.
type Result struct {
	Intercept        bool
	GroundedAnswer   string
	RoomKey          string
	LookupSuccessful bool
	SuggestFloorplan bool
}

// Guardrail answers dimension questions from the canonical resolver.
type Guardrail struct {
	resolver *resolver.Resolver
	settings Settings
}

// New creates a Guardrail.
func New(r *resolver.Resolver, settings Settings) *Guardrail {
	return &Guardrail{resolver: r, settings: settings}
}

const safeFallback = "I don't have verified room dimensions for that space in my database yet. " +
	"However, your official floor plan shows all room measurements clearly. " +
	"You can find it in your Documents section under 'Floor Plans'."

func safeFallbackFor(roomName, houseType string) string {
	return fmt.Sprintf("I don't have the exact dimensions for the %s in your %s stored yet. "+
		"Your official floor plan shows all room measurements clearly - you can find it in your Documents section. "+
		"The floor plan is the most accurate source for room dimensions.", roomName, houseType)
}

// Apply checks the question and, for dimension questions, produces a
// grounded answer or a safe fallback. Non-dimension questions pass through
// untouched.
func (g *Guardrail) Apply(ctx context.Context, scope model.Scope, question string) (*Result, error) {
	if !IsDimensionQuestion(question) {
		return &Result{}, nil
	}

	roomKey := ExtractRoomKey(question)

	if !g.settings.Enabled {
		answer := "Room dimension information is not currently available. Please contact your developer for this information."
		if g.settings.AttachFloorplans {
			answer = "For room dimensions, please refer to your official floor plan in the Documents section. " +
				"The floor plan shows all room measurements clearly."
		}
		return &Result{
			Intercept:        true,
			GroundedAnswer:   answer,
			RoomKey:          roomKey,
			SuggestFloorplan: g.settings.AttachFloorplans,
		}, nil
	}

	if scope.HouseType == "" {
		zap.L().Warn("dimension question without house type", zap.String("question", question))
		return &Result{
			Intercept:        true,
			GroundedAnswer:   safeFallback,
			RoomKey:          roomKey,
			SuggestFloorplan: true,
		}, nil
	}

	dims, confidence, err := g.lookupRoom(ctx, scope, roomKey)
	if err != nil {
		return nil, err
	}

	if confidence >= AnswerThreshold && (dims.LengthM > 0 || dims.AreaSqm > 0) {
		return &Result{
			Intercept:        true,
			GroundedAnswer:   g.formatAnswer(roomKey, scope.HouseType, dims),
			RoomKey:          roomKey,
			LookupSuccessful: true,
		}, nil
	}

	return &Result{
		Intercept:        true,
		GroundedAnswer:   safeFallbackFor(DisplayRoomName(roomKey), scope.HouseType),
		RoomKey:          roomKey,
		SuggestFloorplan: true,
	}, nil
}

// ValidateResponse screens an LLM answer to a dimension question. Invalid
// answers are replaced with a sanitized fallback.
func (g *Guardrail) ValidateResponse(response, question string, lookupSuccessful bool) (string, bool) {
	if !IsDimensionQuestion(question) || lookupSuccessful {
		return response, true
	}
	if ContainsFabricatedDimensions(response, lookupSuccessful) {
		zap.L().Warn("discarding response with fabricated dimensions")
		return "I don't have the exact dimensions for that room in my database yet. " +
			"Your official floor plan shows all room measurements clearly - you can find it in your Documents section under 'Floor Plans'.", false
	}
	return response, true
}

// lookupRoom resolves the room's dimension facts. The returned confidence is
// the lowest among the facts used, so one shaky measurement degrades the
// whole answer.
func (g *Guardrail) lookupRoom(ctx context.Context, scope model.Scope, roomKey string) (model.Dimensions, float64, error) {
	var dims model.Dimensions
	confidence := 1.0
	found := false

	for attr, dst := range map[string]*float64{
		"length_m":         &dims.LengthM,
		"width_m":          &dims.WidthM,
		"area_sqm":         &dims.AreaSqm,
		"ceiling_height_m": &dims.CeilingHeightM,
	} {
		res, err := g.resolver.Resolve(ctx, scope, roomKey+"."+attr)
		if err != nil {
			return dims, 0, err
		}
		if !res.Found {
			continue
		}
		if v, ok := res.Value.(float64); ok {
			*dst = v
			found = true
			if res.Confidence < confidence {
				confidence = res.Confidence
			}
		}
	}

	if !found {
		return dims, 0, nil
	}
	return dims, confidence, nil
}

func (g *Guardrail) formatAnswer(roomKey, houseType string, dims model.Dimensions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s in your %s ", DisplayRoomName(roomKey), houseType)
	switch {
	case dims.LengthM > 0 && dims.WidthM > 0:
		fmt.Fprintf(&b, "measures %.2fm x %.2fm", dims.LengthM, dims.WidthM)
		if dims.AreaSqm > 0 {
			fmt.Fprintf(&b, " (%.1f sqm)", dims.AreaSqm)
		}
	case dims.AreaSqm > 0:
		fmt.Fprintf(&b, "has a floor area of %.1f sqm", dims.AreaSqm)
	default:
		fmt.Fprintf(&b, "measures %.2fm in length", dims.LengthM)
	}
	b.WriteString(".")
	if dims.CeilingHeightM > 0 {
		fmt.Fprintf(&b, " The ceiling height is %.2fm.", dims.CeilingHeightM)
	}

	if g.settings.ShowDisclaimer && g.settings.DisclaimerText != "" {
		b.WriteString("\n\nImportant: " + g.settings.DisclaimerText)
	}
	if g.settings.AttachFloorplans {
		b.WriteString("\n\nFor complete accuracy, you can view your official floor plan in the Documents section.")
	}
	return b.String()
}
