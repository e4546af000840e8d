// Package registry loads the static reference data the pipeline depends
// on: the two taxonomy schemes, the cross-mapping between them, per-scheme
// classification keywords, and the compliance framework rule sets.
package registry

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

//go:embed defaults/taxonomy.yaml
var defaultTaxonomyYAML []byte

//go:embed defaults/frameworks.yaml
var defaultFrameworksYAML []byte

// Taxonomy is the loaded, validated reference data for both schemes.
// Immutable after load; passed explicitly to the components that need it.
type Taxonomy struct {
	Version    string
	Categories []model.TaxonomyCategory
	CrossMap   []model.CrossMapping
	// Keywords maps taxonomy id -> category code -> match terms for the
	// rule-based classification strategy.
	Keywords map[model.TaxonomyID]map[string][]string

	byKey map[model.CategoryKey]model.TaxonomyCategory
}

type taxonomyFile struct {
	Version    string                                   `yaml:"version"`
	Categories []model.TaxonomyCategory                 `yaml:"categories"`
	CrossMap   []model.CrossMapping                     `yaml:"cross_map"`
	Keywords   map[model.TaxonomyID]map[string][]string `yaml:"keywords"`
}

// LoadTaxonomy returns the embedded default taxonomy reference data.
func LoadTaxonomy() (*Taxonomy, error) {
	return parseTaxonomy(defaultTaxonomyYAML)
}

// LoadTaxonomyFromFile reads a taxonomy fixture from the given path.
func LoadTaxonomyFromFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read taxonomy fixture")
	}
	return parseTaxonomy(data)
}

func parseTaxonomy(data []byte) (*Taxonomy, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal taxonomy")
	}

	t := &Taxonomy{
		Version:    f.Version,
		Categories: f.Categories,
		CrossMap:   f.CrossMap,
		Keywords:   f.Keywords,
		byKey:      make(map[model.CategoryKey]model.TaxonomyCategory, len(f.Categories)),
	}

	for _, c := range f.Categories {
		key := model.CategoryKey{TaxonomyID: c.TaxonomyID, Code: c.Code}
		if _, dup := t.byKey[key]; dup {
			return nil, eris.Errorf("registry: duplicate category %s/%s", c.TaxonomyID, c.Code)
		}
		t.byKey[key] = c
	}

	for _, m := range f.CrossMap {
		if !t.Has(model.TaxonomyMIT, m.MITCode) {
			return nil, eris.Errorf("registry: cross-map references unknown mit code %s", m.MITCode)
		}
		if !t.Has(model.TaxonomyAIR, m.AIRCode) {
			return nil, eris.Errorf("registry: cross-map references unknown air code %s", m.AIRCode)
		}
	}

	for tid, byCode := range f.Keywords {
		for code := range byCode {
			if !t.Has(tid, code) {
				return nil, eris.Errorf("registry: keywords reference unknown category %s/%s", tid, code)
			}
		}
	}

	return t, nil
}

// Has reports whether the category code is defined in the given scheme.
// The synthetic UNCLASSIFIED code is always valid.
func (t *Taxonomy) Has(tid model.TaxonomyID, code string) bool {
	if code == model.CodeUnclassified {
		return true
	}
	_, ok := t.byKey[model.CategoryKey{TaxonomyID: tid, Code: code}]
	return ok
}

// Category returns the definition for a scheme-qualified code.
func (t *Taxonomy) Category(tid model.TaxonomyID, code string) (model.TaxonomyCategory, bool) {
	c, ok := t.byKey[model.CategoryKey{TaxonomyID: tid, Code: code}]
	return c, ok
}

// Codes returns the category codes of one scheme, in definition order.
func (t *Taxonomy) Codes(tid model.TaxonomyID) []string {
	var codes []string
	for _, c := range t.Categories {
		if c.TaxonomyID == tid {
			codes = append(codes, c.Code)
		}
	}
	return codes
}

// MappedAIRCodes returns the scheme-B codes mapped from a scheme-A code.
func (t *Taxonomy) MappedAIRCodes(mitCode string) []string {
	var codes []string
	for _, m := range t.CrossMap {
		if m.MITCode == mitCode {
			codes = append(codes, m.AIRCode)
		}
	}
	return codes
}

type frameworksFile struct {
	Frameworks []model.ComplianceFramework `yaml:"frameworks"`
}

// LoadFrameworks returns the embedded default compliance rule sets.
func LoadFrameworks() ([]model.ComplianceFramework, error) {
	return parseFrameworks(defaultFrameworksYAML)
}

// LoadFrameworksFromFile reads a frameworks fixture from the given path.
func LoadFrameworksFromFile(path string) ([]model.ComplianceFramework, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read frameworks fixture")
	}
	return parseFrameworks(data)
}

func parseFrameworks(data []byte) ([]model.ComplianceFramework, error) {
	var f frameworksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal frameworks")
	}
	if len(f.Frameworks) == 0 {
		return nil, eris.New("registry: no frameworks defined")
	}
	for _, fw := range f.Frameworks {
		if fw.FrameworkID == "" || fw.Version == "" {
			return nil, eris.New("registry: framework missing id or version")
		}
		if len(fw.Rules) == 0 {
			return nil, eris.Errorf("registry: framework %s has no rules", fw.FrameworkID)
		}
	}
	return f.Frameworks, nil
}

// Framework returns the rule set with the given id.
func Framework(frameworks []model.ComplianceFramework, id string) (model.ComplianceFramework, bool) {
	for _, f := range frameworks {
		if f.FrameworkID == id {
			return f, true
		}
	}
	return model.ComplianceFramework{}, false
}
