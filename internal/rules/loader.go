package rules

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/permit-cli/internal/model"
)

// Table is one jurisdiction's reference data as kept in a YAML file.
type Table struct {
	JurisdictionID string                    `yaml:"jurisdiction_id"`
	Name           string                    `yaml:"name"`
	Level          model.JurisdictionLevel   `yaml:"level"`
	State          string                    `yaml:"state"`
	Contact        string                    `yaml:"contact"`
	FormURL        string                    `yaml:"form_url"`
	Rules          []fileRule                `yaml:"rules"`
	Regulations    []model.RegulatorySnippet `yaml:"regulations"`
	Fees           []model.FeeSchedule       `yaml:"fees"`
}

// fileRule is a Rule whose active flag defaults to true when omitted.
type fileRule struct {
	PermitType  string   `yaml:"permit_type"`
	PermitName  string   `yaml:"permit_name"`
	Condition   string   `yaml:"condition"`
	Description string   `yaml:"description"`
	Triggers    []string `yaml:"triggers"`
	Inspections []string `yaml:"inspections"`
	FormURL     string   `yaml:"form_url"`
	Active      *bool    `yaml:"active"`
}

// Authority returns the permit authority described by the table.
func (t Table) Authority() model.Authority {
	return model.Authority{
		ID:      t.JurisdictionID,
		Name:    t.Name,
		Level:   t.Level,
		Contact: t.Contact,
		FormURL: t.FormURL,
	}
}

// ParseTable decodes one YAML rule table. Rule, regulation and fee rows
// inherit the table's jurisdiction id.
func ParseTable(data []byte) (*Table, []model.Rule, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, nil, eris.Wrap(err, "rules: decode table")
	}
	if t.JurisdictionID == "" {
		return nil, nil, eris.New("rules: table has no jurisdiction_id")
	}

	out := make([]model.Rule, 0, len(t.Rules))
	for i, fr := range t.Rules {
		r := model.Rule{
			JurisdictionID: t.JurisdictionID,
			PermitType:     fr.PermitType,
			PermitName:     fr.PermitName,
			Condition:      fr.Condition,
			Description:    fr.Description,
			Triggers:       fr.Triggers,
			Inspections:    fr.Inspections,
			FormURL:        fr.FormURL,
			Disabled:       fr.Active != nil && !*fr.Active,
		}
		if strings.TrimSpace(r.PermitType) == "" {
			return nil, nil, eris.Errorf("rules: %s rule %d has no permit_type", t.JurisdictionID, i)
		}
		if _, err := Compile(r.Condition); err != nil {
			zap.L().Warn("rules: rule will never match",
				zap.String("jurisdiction_id", t.JurisdictionID),
				zap.String("permit_type", r.PermitType),
				zap.Error(err),
			)
		}
		out = append(out, r)
	}
	for i := range t.Regulations {
		t.Regulations[i].JurisdictionID = t.JurisdictionID
	}
	for i := range t.Fees {
		t.Fees[i].JurisdictionID = t.JurisdictionID
	}
	return &t, out, nil
}

// Snapshot is an immutable view of every table in a rules directory.
type Snapshot struct {
	tables   map[string]*Table
	rules    map[string][]model.Rule
	LoadedAt time.Time
}

// LoadDir reads every *.yaml and *.yml file in dir.
func LoadDir(dir string) (*Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read dir %s", dir)
	}

	snap := &Snapshot{
		tables:   make(map[string]*Table),
		rules:    make(map[string][]model.Rule),
		LoadedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		if e.IsDir() || !isTableFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: read %s", path)
		}
		t, rs, err := ParseTable(data)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: load %s", path)
		}
		if _, dup := snap.tables[t.JurisdictionID]; dup {
			return nil, eris.Errorf("rules: jurisdiction %s defined twice (%s)", t.JurisdictionID, path)
		}
		snap.tables[t.JurisdictionID] = t
		snap.rules[t.JurisdictionID] = rs
	}

	zap.L().Info("rules: loaded tables",
		zap.String("dir", dir),
		zap.Int("jurisdictions", len(snap.tables)),
	)
	return snap, nil
}

func isTableFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Rules returns the active and inactive rules for a jurisdiction.
func (s *Snapshot) Rules(jurisdictionID string) []model.Rule {
	if s == nil {
		return nil
	}
	return s.rules[jurisdictionID]
}

// Regulations returns the regulatory snippets for a jurisdiction.
func (s *Snapshot) Regulations(jurisdictionID string) []model.RegulatorySnippet {
	if s == nil {
		return nil
	}
	if t, ok := s.tables[jurisdictionID]; ok {
		return t.Regulations
	}
	return nil
}

// Fees returns the fee schedules for a jurisdiction.
func (s *Snapshot) Fees(jurisdictionID string) []model.FeeSchedule {
	if s == nil {
		return nil
	}
	if t, ok := s.tables[jurisdictionID]; ok {
		return t.Fees
	}
	return nil
}

// Table returns the raw table for a jurisdiction.
func (s *Snapshot) Table(jurisdictionID string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[jurisdictionID]
	return t, ok
}

// Jurisdictions lists the loaded jurisdiction ids in sorted order.
func (s *Snapshot) Jurisdictions() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FormURL returns the application form URL for a permit type: the rule's own
// form_url when set, else the table's default.
func (s *Snapshot) FormURL(jurisdictionID, permitType string) string {
	if s == nil {
		return ""
	}
	for _, r := range s.rules[jurisdictionID] {
		if r.PermitType == permitType && r.FormURL != "" {
			return r.FormURL
		}
	}
	if t, ok := s.tables[jurisdictionID]; ok {
		return t.FormURL
	}
	return ""
}
