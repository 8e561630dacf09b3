package model

// Category is the occupancy class of a project.
type Category string

const (
	CategoryResidential Category = "residential"
	CategoryCommercial  Category = "commercial"
	CategoryIndustrial  Category = "industrial"
)

// WorkType is a trade involved in a project.
type WorkType string

const (
	WorkStructural WorkType = "structural"
	WorkElectrical WorkType = "electrical"
	WorkPlumbing   WorkType = "plumbing"
	WorkMechanical WorkType = "mechanical"
	WorkCosmetic   WorkType = "cosmetic"
)

// Scope describes the kind of construction.
type Scope string

const (
	ScopeNewConstruction Scope = "new_construction"
	ScopeAddition        Scope = "addition"
	ScopeAlteration      Scope = "alteration"
	ScopeRepair          Scope = "repair"
)

// RiskLevel is the coarse risk rating assigned during classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AllCategories returns every valid Category.
func AllCategories() []Category {
	return []Category{CategoryResidential, CategoryCommercial, CategoryIndustrial}
}

// AllWorkTypes returns every valid WorkType.
func AllWorkTypes() []WorkType {
	return []WorkType{WorkStructural, WorkElectrical, WorkPlumbing, WorkMechanical, WorkCosmetic}
}

// AllScopes returns every valid Scope.
func AllScopes() []Scope {
	return []Scope{ScopeNewConstruction, ScopeAddition, ScopeAlteration, ScopeRepair}
}

// ProjectClassification is the structured summary of a project derived from
// its free-text description. It is produced once per discovery request and
// treated as immutable afterwards.
type ProjectClassification struct {
	Category                  Category   `json:"project_category"`
	WorkTypes                 []WorkType `json:"work_types"`
	Scope                     Scope      `json:"scope"`
	SquareFootage             *float64   `json:"square_footage"`
	Stories                   *int       `json:"stories"`
	InvolvesUtilities         bool       `json:"involves_utilities"`
	InvolvesStructuralChanges bool       `json:"involves_structural_changes"`
	InvolvesOccupancyChange   bool       `json:"involves_occupancy_change"`
	FireSafetyConcerns        bool       `json:"fire_safety_concerns"`
	KeyFeatures               []string   `json:"key_features"`
	RiskLevel                 RiskLevel  `json:"risk_level"`
	EstimatedValue            float64    `json:"estimated_value"`
}

// HasWorkType reports whether wt is among the classification's work types.
func (c ProjectClassification) HasWorkType(wt WorkType) bool {
	for _, w := range c.WorkTypes {
		if w == wt {
			return true
		}
	}
	return false
}

// Attributes exposes the classification as a flat name → value map for the
// rule condition language. Optional fields that are unset are omitted so
// that conditions referencing them fail to evaluate.
func (c ProjectClassification) Attributes() map[string]any {
	workTypes := make([]string, len(c.WorkTypes))
	for i, w := range c.WorkTypes {
		workTypes[i] = string(w)
	}
	features := make([]string, len(c.KeyFeatures))
	copy(features, c.KeyFeatures)

	attrs := map[string]any{
		"category":                    string(c.Category),
		"project_category":            string(c.Category),
		"work_types":                  workTypes,
		"scope":                       string(c.Scope),
		"involves_utilities":          c.InvolvesUtilities,
		"involves_structural_changes": c.InvolvesStructuralChanges,
		"involves_occupancy_change":   c.InvolvesOccupancyChange,
		"fire_safety_concerns":        c.FireSafetyConcerns,
		"key_features":                features,
		"risk_level":                  string(c.RiskLevel),
		"estimated_value":             c.EstimatedValue,
	}
	if c.SquareFootage != nil {
		attrs["square_footage"] = *c.SquareFootage
	}
	if c.Stories != nil {
		attrs["stories"] = float64(*c.Stories)
	}
	return attrs
}
