package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

const classifyPrompt = `Analyze this construction or renovation project and extract its key details.

Description: %s
Project Type: %s
Additional Details: %s

Return a JSON object:
{"project_category": "residential|commercial|industrial", "work_types": ["structural", "electrical", "plumbing", "mechanical", "cosmetic"], "scope": "new_construction|addition|alteration|repair", "square_footage": number or null, "stories": number or null, "involves_utilities": bool, "involves_structural_changes": bool, "involves_occupancy_change": bool, "fire_safety_concerns": bool, "key_features": ["important features"], "risk_level": "low|medium|high"}`

// costPerSqFt is the construction cost used to value a project by area.
var costPerSqFt = map[model.Category]float64{
	model.CategoryResidential: 150,
	model.CategoryCommercial:  200,
	model.CategoryIndustrial:  175,
}

// scopeValue values a project whose area is unknown.
var scopeValue = map[model.Scope]float64{
	model.ScopeNewConstruction: 250000,
	model.ScopeAddition:        75000,
	model.ScopeAlteration:      40000,
	model.ScopeRepair:          10000,
}

// EstimateValue derives a project's value from its area and category,
// falling back to a per-scope default when the area is unknown.
func EstimateValue(c model.ProjectClassification) float64 {
	if c.SquareFootage != nil && *c.SquareFootage > 0 {
		rate, ok := costPerSqFt[c.Category]
		if !ok {
			rate = costPerSqFt[model.CategoryResidential]
		}
		return math.Round(*c.SquareFootage * rate)
	}
	if v, ok := scopeValue[c.Scope]; ok {
		return v
	}
	return scopeValue[model.ScopeAlteration]
}

// Classifier turns a project description into a ProjectClassification.
type Classifier struct {
	client oracle.Client
}

// NewClassifier creates a Classifier. A nil client classifies by keyword
// only.
func NewClassifier(client oracle.Client) *Classifier {
	return &Classifier{client: client}
}

type oracleClassification struct {
	Category                  string   `json:"project_category"`
	WorkTypes                 []string `json:"work_types"`
	Scope                     string   `json:"scope"`
	SquareFootage             *float64 `json:"square_footage"`
	Stories                   *float64 `json:"stories"`
	InvolvesUtilities         bool     `json:"involves_utilities"`
	InvolvesStructuralChanges bool     `json:"involves_structural_changes"`
	InvolvesOccupancyChange   bool     `json:"involves_occupancy_change"`
	FireSafetyConcerns        bool     `json:"fire_safety_concerns"`
	KeyFeatures               []string `json:"key_features"`
	RiskLevel                 string   `json:"risk_level"`
}

// Classify asks the oracle for a classification. When the oracle fails the
// keyword classification is returned with degraded set and the oracle error
// is logged. Attributes the oracle leaves out or gets wrong are taken from
// the keyword classification.
func (c *Classifier) Classify(ctx context.Context, in model.ProjectInput) (cls model.ProjectClassification, degraded bool) {
	fallback := KeywordClassify(in)
	if c.client == nil {
		return fallback, true
	}

	got, err := c.ask(ctx, in)
	if err != nil {
		zap.L().Warn("discovery: oracle classification failed, using keywords",
			zap.String("category", string(fallback.Category)),
			zap.String("scope", string(fallback.Scope)),
			zap.Error(err),
		)
		return fallback, true
	}

	cls = merge(*got, fallback)
	applyDetails(&cls, in.Details)
	cls.EstimatedValue = EstimateValue(cls)
	return cls, false
}

func (c *Classifier) ask(ctx context.Context, in model.ProjectInput) (*oracleClassification, error) {
	projectType := in.ProjectType
	if projectType == "" {
		projectType = "unknown"
	}
	details := "{}"
	if len(in.Details) > 0 {
		b, err := json.Marshal(in.Details)
		if err != nil {
			return nil, eris.Wrap(err, "discovery: marshal details")
		}
		details = string(b)
	}

	text, err := c.client.Generate(ctx, fmt.Sprintf(classifyPrompt, in.Description, projectType, details), oracle.FormatStructured)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: oracle classify")
	}
	var out oracleClassification
	if err := oracle.DecodeObject(text, &out); err != nil {
		return nil, eris.Wrap(err, "discovery: parse oracle classify")
	}
	return &out, nil
}

func merge(o oracleClassification, fb model.ProjectClassification) model.ProjectClassification {
	cls := model.ProjectClassification{
		Category:                  fb.Category,
		Scope:                     fb.Scope,
		SquareFootage:             o.SquareFootage,
		InvolvesUtilities:         o.InvolvesUtilities,
		InvolvesStructuralChanges: o.InvolvesStructuralChanges,
		InvolvesOccupancyChange:   o.InvolvesOccupancyChange,
		FireSafetyConcerns:        o.FireSafetyConcerns,
		KeyFeatures:               o.KeyFeatures,
		RiskLevel:                 fb.RiskLevel,
	}
	if cat := model.Category(strings.ToLower(strings.TrimSpace(o.Category))); validCategory(cat) {
		cls.Category = cat
	}
	if sc := model.Scope(strings.ToLower(strings.TrimSpace(o.Scope))); validScope(sc) {
		cls.Scope = sc
	}
	if r := model.RiskLevel(strings.ToLower(strings.TrimSpace(o.RiskLevel))); r == model.RiskLow || r == model.RiskMedium || r == model.RiskHigh {
		cls.RiskLevel = r
	}
	for _, w := range o.WorkTypes {
		wt := model.WorkType(strings.ToLower(strings.TrimSpace(w)))
		if validWorkType(wt) && !cls.HasWorkType(wt) {
			cls.WorkTypes = append(cls.WorkTypes, wt)
		}
	}
	if len(cls.WorkTypes) == 0 {
		cls.WorkTypes = fb.WorkTypes
	}
	if cls.SquareFootage == nil || *cls.SquareFootage <= 0 {
		cls.SquareFootage = fb.SquareFootage
	}
	if o.Stories != nil && *o.Stories >= 1 {
		n := int(*o.Stories)
		cls.Stories = &n
	} else {
		cls.Stories = fb.Stories
	}
	if cls.KeyFeatures == nil {
		cls.KeyFeatures = []string{}
	}
	return cls
}

func validCategory(c model.Category) bool {
	for _, v := range model.AllCategories() {
		if v == c {
			return true
		}
	}
	return false
}

func validScope(s model.Scope) bool {
	for _, v := range model.AllScopes() {
		if v == s {
			return true
		}
	}
	return false
}

func validWorkType(w model.WorkType) bool {
	for _, v := range model.AllWorkTypes() {
		if v == w {
			return true
		}
	}
	return false
}

// applyDetails lets explicit numeric details override extracted ones.
func applyDetails(c *model.ProjectClassification, details map[string]any) {
	if v, ok := number(details["square_footage"]); ok && v > 0 {
		c.SquareFootage = &v
	}
	if v, ok := number(details["stories"]); ok && v >= 1 {
		n := int(v)
		c.Stories = &n
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}

var (
	sqftPattern    = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(?:sq\.?\s*ft\.?|square\s+f(?:ee|oo)t|sqft|sf)\b`)
	dimsPattern    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:'|ft|feet)?\s*(?:x|by|×)\s*(\d+(?:\.\d+)?)\b`)
	storiesPattern = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five)[- ]stor(?:y|ies|ey)\b`)
)

var storyWords = map[string]int{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5}

// keyword lists per attribute. Phrases are matched on word boundaries.
var (
	commercialWords = []string{"commercial", "office", "retail", "restaurant", "store", "shop", "tenant", "business"}
	industrialWords = []string{"industrial", "warehouse", "factory", "manufacturing", "plant"}

	workWords = []struct {
		wt    model.WorkType
		words []string
	}{
		{model.WorkStructural, []string{"structural", "wall", "walls", "beam", "foundation", "framing", "deck", "addition", "roof", "load-bearing", "garage", "porch", "fence", "shed"}},
		{model.WorkElectrical, []string{"electrical", "wiring", "outlet", "outlets", "circuit", "panel", "lighting", "solar", "ev charger", "generator"}},
		{model.WorkPlumbing, []string{"plumbing", "bathroom", "toilet", "sink", "pipe", "pipes", "water heater", "shower", "tub", "drain", "sewer"}},
		{model.WorkMechanical, []string{"hvac", "furnace", "air conditioning", "ductwork", "mechanical", "heat pump", "ventilation", "boiler"}},
		{model.WorkCosmetic, []string{"paint", "painting", "flooring", "cabinet", "cabinets", "countertop", "countertops", "tile", "cosmetic", "carpet"}},
	}

	newConstructionWords = []string{"new construction", "new home", "new house", "new building", "build a new", "ground up"}
	additionWords        = []string{"addition", "add a", "extend", "extension", "deck", "expand", "garage", "shed"}
	repairWords          = []string{"repair", "replace", "replacement", "fix"}
	occupancyWords       = []string{"convert", "conversion", "change of use", "occupancy", "adu", "accessory dwelling"}
	fireWords            = []string{"fire", "sprinkler", "hood", "fireplace", "smoke", "egress", "wood stove"}
)

// KeywordClassify classifies a project from words in its description and
// project type. It never fails and is used when the oracle is unavailable.
func KeywordClassify(in model.ProjectInput) model.ProjectClassification {
	text := " " + strings.ToLower(in.Description+" "+in.ProjectType) + " "

	c := model.ProjectClassification{
		Category:    model.CategoryResidential,
		KeyFeatures: []string{},
	}
	switch {
	case containsAny(text, industrialWords):
		c.Category = model.CategoryIndustrial
	case containsAny(text, commercialWords):
		c.Category = model.CategoryCommercial
	}

	for _, ww := range workWords {
		for _, w := range ww.words {
			if containsWord(text, w) {
				if !c.HasWorkType(ww.wt) {
					c.WorkTypes = append(c.WorkTypes, ww.wt)
				}
				c.KeyFeatures = appendFeature(c.KeyFeatures, w)
			}
		}
	}
	if len(c.WorkTypes) == 0 {
		c.WorkTypes = []model.WorkType{model.WorkCosmetic}
	}

	switch {
	case validScope(model.Scope(strings.ToLower(in.ProjectType))):
		c.Scope = model.Scope(strings.ToLower(in.ProjectType))
	case containsAny(text, newConstructionWords):
		c.Scope = model.ScopeNewConstruction
	case containsAny(text, additionWords):
		c.Scope = model.ScopeAddition
	case containsAny(text, repairWords):
		c.Scope = model.ScopeRepair
	default:
		c.Scope = model.ScopeAlteration
	}

	c.SquareFootage = squareFootage(in.Description)
	c.Stories = stories(in.Description)
	c.InvolvesStructuralChanges = c.HasWorkType(model.WorkStructural)
	c.InvolvesUtilities = c.HasWorkType(model.WorkElectrical) || c.HasWorkType(model.WorkPlumbing) || c.HasWorkType(model.WorkMechanical)
	c.InvolvesOccupancyChange = containsAny(text, occupancyWords)
	c.FireSafetyConcerns = containsAny(text, fireWords)

	switch {
	case c.FireSafetyConcerns || (c.InvolvesStructuralChanges && (c.Category != model.CategoryResidential || c.Scope == model.ScopeNewConstruction)):
		c.RiskLevel = model.RiskHigh
	case c.InvolvesStructuralChanges || c.InvolvesUtilities || c.InvolvesOccupancyChange:
		c.RiskLevel = model.RiskMedium
	default:
		c.RiskLevel = model.RiskLow
	}

	applyDetails(&c, in.Details)
	c.EstimatedValue = EstimateValue(c)
	return c
}

func squareFootage(desc string) *float64 {
	if m := sqftPattern.FindStringSubmatch(desc); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil && v > 0 {
			return &v
		}
	}
	if m := dimsPattern.FindStringSubmatch(desc); m != nil {
		w, err1 := strconv.ParseFloat(m[1], 64)
		l, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && w > 0 && l > 0 {
			v := w * l
			return &v
		}
	}
	return nil
}

func stories(desc string) *int {
	m := storiesPattern.FindStringSubmatch(desc)
	if m == nil {
		return nil
	}
	word := strings.ToLower(m[1])
	if n, ok := storyWords[word]; ok {
		return &n
	}
	n, err := strconv.Atoi(word)
	if err != nil || n < 1 {
		return nil
	}
	return &n
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether w appears in text bounded by non-letters.
// text is lower case.
func containsWord(text, w string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], w)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(w)
		if !isLetter(text, start-1) && !isLetter(text, end) {
			return true
		}
		i = start + 1
	}
}

func isLetter(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	b := s[i]
	return b >= 'a' && b <= 'z'
}

func appendFeature(list []string, f string) []string {
	for _, x := range list {
		if x == f {
			return list
		}
	}
	return append(list, f)
}
