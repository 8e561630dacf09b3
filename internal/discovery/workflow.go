package discovery

import (
	"sort"
	"strings"

	"github.com/sells-group/permit-cli/internal/autofill"
	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/permits"
)

// stepPriority orders permits that gate the others.
var stepPriority = map[string]int{
	"zoning":   0,
	"building": 1,
}

// WorkflowStep is one permit application in submission order.
type WorkflowStep struct {
	Step           int      `json:"step"`
	PermitType     string   `json:"permit_type"`
	PermitName     string   `json:"permit_name"`
	Action         string   `json:"action"`
	DependsOn      []string `json:"depends_on,omitempty"`
	ProcessingTime string   `json:"processing_time,omitempty"`
	Inspections    []string `json:"inspections"`
}

// Cost is the fee total over permits with a known fee.
type Cost struct {
	TotalFees   float64  `json:"total_fees"`
	Display     string   `json:"display"`
	UnknownFees []string `json:"unknown_fees,omitempty"`
}

// BuildWorkflow orders the required permits into application steps. Zoning
// and building permits come first and every later step depends on them.
// Each step lists the inspections its rule names.
func BuildWorkflow(required []model.RequiredPermit, ruleTable []model.Rule) []WorkflowStep {
	inspections := make(map[string][]string)
	for _, r := range ruleTable {
		k := permits.Key(r.PermitType)
		if len(r.Inspections) > 0 && inspections[k] == nil {
			inspections[k] = r.Inspections
		}
	}

	ordered := make([]model.RequiredPermit, 0, len(required))
	for _, p := range required {
		if p.Required {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return priority(ordered[i].PermitType) < priority(ordered[j].PermitType)
	})

	var gates []string
	for _, p := range ordered {
		if _, ok := stepPriority[permits.Key(p.PermitType)]; ok {
			gates = append(gates, p.PermitType)
		}
	}

	steps := make([]WorkflowStep, 0, len(ordered))
	for i, p := range ordered {
		name := p.PermitName
		if name == "" {
			name = p.PermitType + " permit"
		}
		step := WorkflowStep{
			Step:        i + 1,
			PermitType:  p.PermitType,
			PermitName:  p.PermitName,
			Action:      "Submit " + name + " application",
			Inspections: append([]string{}, inspections[permits.Key(p.PermitType)]...),
		}
		if _, gate := stepPriority[permits.Key(p.PermitType)]; !gate {
			step.DependsOn = gates
		}
		if p.ProcessingTime != nil {
			step.ProcessingTime = p.ProcessingTime.String()
		}
		steps = append(steps, step)
	}
	return steps
}

func priority(permitType string) int {
	if p, ok := stepPriority[permits.Key(permitType)]; ok {
		return p
	}
	return len(stepPriority)
}

// Inspections flattens the workflow's inspections in step order, dropping
// repeats case-insensitively.
func Inspections(steps []WorkflowStep) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, s := range steps {
		for _, in := range s.Inspections {
			k := strings.ToLower(strings.TrimSpace(in))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, in)
		}
	}
	return out
}

// Timeline sums the processing ranges of the required permits. It is empty
// when no permit has a known processing time.
func Timeline(required []model.RequiredPermit) string {
	var total model.ProcessingTime
	known := false
	for _, p := range required {
		if !p.Required || p.ProcessingTime == nil {
			continue
		}
		known = true
		total.MinDays += p.ProcessingTime.MinDays
		total.MaxDays += p.ProcessingTime.MaxDays
	}
	if !known {
		return ""
	}
	return total.String()
}

// Costs sums the known fees of the required permits and names those whose
// fee is unknown.
func Costs(required []model.RequiredPermit) Cost {
	var c Cost
	for _, p := range required {
		if !p.Required {
			continue
		}
		if p.EstimatedFee == nil {
			c.UnknownFees = append(c.UnknownFees, p.PermitType)
			continue
		}
		c.TotalFees += *p.EstimatedFee
	}
	c.Display, _ = autofill.FormatCurrency(c.TotalFees).(string)
	return c
}
