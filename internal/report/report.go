// Package report renders read-only snapshots of a finished analysis
// run for the API and dashboard layers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// BlindSpotIndex is the published gap metric block.
type BlindSpotIndex struct {
	Global     float64                 `json:"global"`
	ByCategory []model.BlindSpotMetric `json:"by_category"`
}

// Snapshot is the exposed reporting contract. The field layout is part
// of the dashboard API and must not change shape.
type Snapshot struct {
	RunID           string                 `json:"run_id"`
	Scope           string                 `json:"scope,omitempty"`
	EntityCount     int                    `json:"entity_count"`
	RunAt           time.Time              `json:"run_at"`
	BlindSpotIndex  BlindSpotIndex         `json:"blind_spot_index"`
	Recommendations []model.Recommendation `json:"recommendations"`
}

// Build assembles a snapshot from a persisted run and its current
// recommendation queue.
func Build(run model.AnalysisRun, recs []model.Recommendation) Snapshot {
	if recs == nil {
		recs = []model.Recommendation{}
	}
	metrics := run.Metrics
	if metrics == nil {
		metrics = []model.BlindSpotMetric{}
	}
	return Snapshot{
		RunID:       run.ID,
		Scope:       run.Scope,
		EntityCount: run.EntityCount,
		RunAt:       run.RunAt,
		BlindSpotIndex: BlindSpotIndex{
			Global:     run.GlobalBSI,
			ByCategory: metrics,
		},
		Recommendations: recs,
	}
}

// WriteJSON writes the snapshot as indented JSON.
func WriteJSON(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(snap), "report: encode json")
}

var xlsxHeader = []string{"category", "documented_pct", "incident_pct", "bsi", "adjusted_bsi", "high_risk", "total_count"}

// WriteXLSX writes one sheet with a row per category metric.
func WriteXLSX(w io.Writer, snap Snapshot) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("blind_spots")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range xlsxHeader {
		header.AddCell().SetString(col)
	}

	for _, m := range snap.BlindSpotIndex.ByCategory {
		row := sheet.AddRow()
		row.AddCell().SetString(m.Code)
		row.AddCell().SetFloat(m.DocumentedPct)
		row.AddCell().SetFloat(m.IncidentPct)
		row.AddCell().SetFloat(m.BSI)
		row.AddCell().SetFloat(m.AdjustedBSI)
		row.AddCell().SetBool(m.HighRisk)
		row.AddCell().SetInt(m.TotalCount)
	}

	summary := sheet.AddRow()
	summary.AddCell().SetString("global")
	summary.AddCell().SetString("")
	summary.AddCell().SetString("")
	summary.AddCell().SetFloat(snap.BlindSpotIndex.Global)

	return eris.Wrap(f.Write(w), "report: write xlsx")
}

// RenderText writes the terminal summary printed after an analyze run.
func RenderText(w io.Writer, snap Snapshot) {
	fmt.Fprintf(w, "run %s  entities=%d  global blind spot index=%.3f\n", snap.RunID, snap.EntityCount, snap.BlindSpotIndex.Global)
	if snap.Scope != "" {
		fmt.Fprintf(w, "scope: %s\n", snap.Scope)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-30s %10s %10s %8s %8s  %s\n", "category", "doc %", "incident %", "bsi", "adj bsi", "flag")
	for _, m := range snap.BlindSpotIndex.ByCategory {
		flag := ""
		if m.HighRisk {
			flag = "HIGH RISK"
		}
		fmt.Fprintf(w, "%-30s %10.1f %10.1f %8.2f %8.2f  %s\n",
			m.Code, m.DocumentedPct, m.IncidentPct, m.BSI, m.AdjustedBSI, flag)
	}
	if len(snap.Recommendations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "recommendations:")
		for _, r := range snap.Recommendations {
			evidence := ""
			if r.EvidenceRequired {
				evidence = " [evidence required]"
			}
			fmt.Fprintf(w, "  [%s] %s: %s%s\n", r.Priority, r.Code, r.Action, evidence)
		}
	}
}
