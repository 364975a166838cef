package model

import (
	"time"
)

// Source identifies the extraction tier a fact came from. The set is closed;
// tier precedence is defined here and nowhere else.
type Source string

const (
	SourceVisionExtraction  Source = "vision_extraction"
	SourceAIDocumentProfile Source = "ai_document_profile"
	SourceTemplateDefault   Source = "template_default"
)

// sourceTiers ranks sources for conflict resolution. Higher wins.
var sourceTiers = map[Source]int{
	SourceVisionExtraction:  3,
	SourceAIDocumentProfile: 2,
	SourceTemplateDefault:   1,
}

// Tier returns the precedence rank of the source. Unknown sources rank 0,
// below every valid tier.
func (s Source) Tier() int {
	return sourceTiers[s]
}

// Valid reports whether the source is a member of the closed set.
func (s Source) Valid() bool {
	_, ok := sourceTiers[s]
	return ok
}

// Sources lists all valid sources in descending tier order.
func Sources() []Source {
	return []Source{SourceVisionExtraction, SourceAIDocumentProfile, SourceTemplateDefault}
}

// Scope identifies the owner of a fact: tenant, development, and house type.
// UnitID is optional and narrows the scope to a single unit.
type Scope struct {
	TenantID      string `json:"tenant_id"`
	DevelopmentID string `json:"development_id"`
	HouseType     string `json:"house_type"`
	UnitID        string `json:"unit_id,omitempty"`
}

// Validate rejects scopes missing any required identifier.
func (s Scope) Validate() error {
	if s.TenantID == "" || s.DevelopmentID == "" || s.HouseType == "" {
		return ErrInvalidScope
	}
	return nil
}

// Fact is a single measured or extracted value scoped to a house type and
// keyed by room or attribute name. Multiple facts from different sources may
// coexist for one key; the resolver decides which is canonical at read time.
type Fact struct {
	ID         string    `json:"id,omitempty"`
	Scope      Scope     `json:"scope"`
	Key        string    `json:"key"`
	Value      any       `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Source     Source    `json:"source"`
	Confidence float64   `json:"confidence"`
	PassID     string    `json:"pass_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Dimensions is the structured value for room-dimension facts.
type Dimensions struct {
	LengthM        float64 `json:"length_m,omitempty"`
	WidthM         float64 `json:"width_m,omitempty"`
	AreaSqm        float64 `json:"area_sqm,omitempty"`
	CeilingHeightM float64 `json:"ceiling_height_m,omitempty"`
}

// Area returns the recorded floor area, deriving it from length and width
// when not stored explicitly.
func (d Dimensions) Area() float64 {
	if d.AreaSqm > 0 {
		return d.AreaSqm
	}
	return d.LengthM * d.WidthM
}
