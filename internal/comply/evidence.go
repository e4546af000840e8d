package comply

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// WriteEvidencePack writes a self-describing zip archive for a finding
// set: the findings, the cited canonical entities, the exact framework
// version evaluated, and a human-readable summary.
func WriteEvidencePack(w io.Writer, profile Profile, framework model.ComplianceFramework, findings []model.ComplianceFinding) error {
	zw := zip.NewWriter(w)

	if err := writeJSON(zw, "finding.json", findings); err != nil {
		return err
	}
	if err := writeJSON(zw, "entities.json", citedEntities(profile, findings)); err != nil {
		return err
	}

	fw, err := zw.Create("framework.yaml")
	if err != nil {
		return eris.Wrap(err, "comply: create framework.yaml")
	}
	frameworkYAML, err := yaml.Marshal(framework)
	if err != nil {
		return eris.Wrap(err, "comply: marshal framework")
	}
	if _, err := fw.Write(frameworkYAML); err != nil {
		return eris.Wrap(err, "comply: write framework.yaml")
	}

	sw, err := zw.Create("summary.md")
	if err != nil {
		return eris.Wrap(err, "comply: create summary.md")
	}
	if _, err := io.WriteString(sw, renderSummary(profile, framework, findings)); err != nil {
		return eris.Wrap(err, "comply: write summary.md")
	}

	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "comply: close evidence pack")
	}
	return nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	f, err := zw.Create(name)
	if err != nil {
		return eris.Wrapf(err, "comply: create %s", name)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "comply: encode %s", name)
	}
	return nil
}

// citedEntities returns the entities referenced by at least one finding,
// in profile order.
func citedEntities(profile Profile, findings []model.ComplianceFinding) []model.CanonicalRiskEntity {
	cited := make(map[string]bool)
	for _, f := range findings {
		for _, ref := range f.EvidenceRefs {
			cited[ref] = true
		}
	}
	out := make([]model.CanonicalRiskEntity, 0, len(cited))
	for _, e := range profile.Entities {
		if cited[e.ClusterID] {
			out = append(out, e)
		}
	}
	return out
}

func renderSummary(profile Profile, framework model.ComplianceFramework, findings []model.ComplianceFinding) string {
	s := Summarize(findings)

	var b strings.Builder
	fmt.Fprintf(&b, "# Compliance evidence pack\n\n")
	fmt.Fprintf(&b, "Subject: %s\n\n", profile.SubjectID)
	fmt.Fprintf(&b, "Framework: %s (%s), version %s\n\n", framework.Name, framework.FrameworkID, framework.Version)
	fmt.Fprintf(&b, "Result: %d pass, %d fail, %d insufficient evidence\n\n", s.Pass, s.Fail, s.InsufficientEvidence)
	fmt.Fprintf(&b, "| Rule | Status | Detail |\n|---|---|---|\n")
	for _, f := range findings {
		detail := f.Detail
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", f.RuleID, f.Status, detail)
	}
	return b.String()
}
