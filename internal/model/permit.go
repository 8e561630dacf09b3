package model

import "fmt"

// Provenance records which matching source produced a permit determination.
type Provenance string

const (
	ProvenanceRule   Provenance = "rule"
	ProvenanceOracle Provenance = "oracle"
	ProvenanceBoth   Provenance = "both"
)

// Rule is one entry of a jurisdiction's permit rule table.
type Rule struct {
	JurisdictionID string   `json:"jurisdiction_id" yaml:"jurisdiction_id"`
	PermitType     string   `json:"permit_type" yaml:"permit_type"`
	PermitName     string   `json:"permit_name" yaml:"permit_name"`
	Condition      string   `json:"condition" yaml:"condition"`
	Description    string   `json:"description" yaml:"description"`
	Triggers       []string `json:"triggers" yaml:"triggers"`
	Inspections    []string `json:"inspections,omitempty" yaml:"inspections"`
	FormURL        string   `json:"form_url,omitempty" yaml:"form_url"`
	Disabled       bool     `json:"disabled,omitempty" yaml:"disabled"`
}

// CandidatePermit is a permit determination from one or both matchers.
// PermitType is the natural key for deduplication within one run.
type CandidatePermit struct {
	PermitType  string     `json:"permit_type"`
	PermitName  string     `json:"permit_name"`
	Required    bool       `json:"required"`
	Reasoning   string     `json:"reasoning"`
	Triggers    []string   `json:"triggers"`
	Exemptions  []string   `json:"exemptions,omitempty"`
	Provenance  Provenance `json:"provenance"`
	NeedsReview bool       `json:"needs_review,omitempty"`
}

// ProcessingTime is a range of business days.
type ProcessingTime struct {
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

func (p ProcessingTime) String() string {
	if p.MinDays == p.MaxDays {
		return fmt.Sprintf("%d business days", p.MinDays)
	}
	return fmt.Sprintf("%d-%d business days", p.MinDays, p.MaxDays)
}

// Enrichment attribute names reported in RequiredPermit.EnrichmentGaps.
const (
	EnrichFormID         = "form_id"
	EnrichEstimatedFee   = "estimated_fee"
	EnrichProcessingTime = "processing_time"
)

// RequiredPermit is a reconciled permit with lookup-derived attributes.
// Nil attributes could not be resolved and are named in EnrichmentGaps.
type RequiredPermit struct {
	CandidatePermit
	FormID         *string         `json:"form_id"`
	EstimatedFee   *float64        `json:"estimated_fee"`
	ProcessingTime *ProcessingTime `json:"processing_time"`
	EnrichmentGaps []string        `json:"enrichment_gaps,omitempty"`
}

// RegulatorySnippet is a piece of retrieved regulatory text for a jurisdiction.
type RegulatorySnippet struct {
	JurisdictionID string `json:"jurisdiction_id" yaml:"jurisdiction_id"`
	Code           string `json:"code" yaml:"code"`
	Title          string `json:"title" yaml:"title"`
	Text           string `json:"text" yaml:"text"`
}

// FeeSchedule is a jurisdiction's fee and turnaround table for a permit type.
type FeeSchedule struct {
	JurisdictionID    string  `json:"jurisdiction_id" yaml:"jurisdiction_id"`
	PermitType        string  `json:"permit_type" yaml:"permit_type"`
	FormID            string  `json:"form_id" yaml:"form_id"`
	BaseFee           float64 `json:"base_fee" yaml:"base_fee"`
	PerSqFt           float64 `json:"per_sqft" yaml:"per_sqft"`
	PercentOfValue    float64 `json:"percent_of_value" yaml:"percent_of_value"`
	MinProcessingDays int     `json:"min_processing_days" yaml:"min_processing_days"`
	MaxProcessingDays int     `json:"max_processing_days" yaml:"max_processing_days"`
}

// MaxDays returns the upper processing bound, never below the lower one.
func (f FeeSchedule) MaxDays() int {
	return max(f.MinProcessingDays, f.MaxProcessingDays)
}
