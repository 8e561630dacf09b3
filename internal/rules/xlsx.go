package rules

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/permit-cli/internal/model"
)

// XLSX columns, located by header name. List cells are ';'-separated.
var xlsxColumns = []string{
	"jurisdiction_id", "permit_type", "permit_name", "condition",
	"description", "triggers", "inspections",
}

// ImportXLSX reads rules from the first sheet of a workbook whose first row
// names the columns. Optional columns are form_url and active ("false",
// "no" or "0" disables a rule). Rows with no permit_type are skipped.
func ImportXLSX(path string) ([]model.Rule, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "rules: open xlsx")
	}
	if len(f.Sheets) == 0 || len(f.Sheets[0].Rows) == 0 {
		return nil, eris.New("rules: xlsx has no rows")
	}
	sheet := f.Sheets[0]

	idx := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		idx[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	for _, col := range xlsxColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("rules: xlsx missing column %q", col)
		}
	}

	var out []model.Rule
	for n, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}

		if get("permit_type") == "" {
			continue
		}
		r := model.Rule{
			JurisdictionID: get("jurisdiction_id"),
			PermitType:     get("permit_type"),
			PermitName:     get("permit_name"),
			Condition:      get("condition"),
			Description:    get("description"),
			Triggers:       splitList(get("triggers")),
			Inspections:    splitList(get("inspections")),
			FormURL:        get("form_url"),
			Disabled:       !parseActive(get("active")),
		}
		if r.JurisdictionID == "" {
			return nil, eris.Errorf("rules: xlsx row %d has no jurisdiction_id", n+2)
		}
		out = append(out, r)
	}
	return out, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseActive(s string) bool {
	switch strings.ToLower(s) {
	case "false", "no", "0", "n":
		return false
	}
	return true
}
