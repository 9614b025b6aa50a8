// Package export reshapes per-site fit results into the three tabular
// artifacts consumed downstream: a long coefficient table, a wide pivot of
// it, and a per-site metrics table, plus their CSV renderings.
package export

import (
	"fmt"
	"math"
	"sort"

	"github.com/sitecast/sitecast/pkg/model"
)

// CoefficientRow is the atomic unit of the coefficient export: one
// (site, design-matrix column) pair.
type CoefficientRow struct {
	Site     string  `json:"site"`
	Variable string  `json:"variable"`
	Coef     float64 `json:"coef"`
}

// PivotError reports a duplicate (site, variable) pair during wide-table
// construction. The encoder guarantees unique column names per site, so a
// collision means a determinism bug and must abort the run.
type PivotError struct {
	Site     string
	Variable string
}

func (e *PivotError) Error() string {
	return fmt.Sprintf("export: duplicate coefficient for site %q variable %q", e.Site, e.Variable)
}

// WideTable is the site × variable pivot of the long table. Cells is indexed
// [site][variable] following the order of Sites and Variables; pairs absent
// from the long table (a variable another site's history never produced)
// hold NaN.
type WideTable struct {
	Sites     []string    `json:"sites"`
	Variables []string    `json:"variables"`
	Cells     [][]float64 `json:"cells"`
}

// Collect flattens the effect coefficients of all fitted sites into the long
// table, rows grouped by site in the given order.
func Collect(models []model.SiteModel) []CoefficientRow {
	var rows []CoefficientRow
	for _, m := range models {
		for i, name := range m.Effects.Variables {
			rows = append(rows, CoefficientRow{
				Site:     m.Site,
				Variable: name,
				Coef:     m.Effects.Coeffs[i],
			})
		}
	}
	return rows
}

// Pivot builds the wide table from the long one. Sites and variables are
// sorted ascending so the column identity is stable across runs. Returns a
// *PivotError if any (site, variable) pair appears more than once.
func Pivot(rows []CoefficientRow) (WideTable, error) {
	siteSet := make(map[string]struct{})
	varSet := make(map[string]struct{})
	cells := make(map[string]map[string]float64)

	for _, r := range rows {
		siteSet[r.Site] = struct{}{}
		varSet[r.Variable] = struct{}{}
		if cells[r.Site] == nil {
			cells[r.Site] = make(map[string]float64)
		}
		if _, dup := cells[r.Site][r.Variable]; dup {
			return WideTable{}, &PivotError{Site: r.Site, Variable: r.Variable}
		}
		cells[r.Site][r.Variable] = r.Coef
	}

	table := WideTable{
		Sites:     sortedKeys(siteSet),
		Variables: sortedKeys(varSet),
	}
	table.Cells = make([][]float64, len(table.Sites))
	for i, site := range table.Sites {
		row := make([]float64, len(table.Variables))
		for j, variable := range table.Variables {
			if v, ok := cells[site][variable]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		table.Cells[i] = row
	}
	return table, nil
}

// Unpivot flattens a wide table back to long rows, skipping NaN cells that
// Pivot introduced for absent pairs. Pivot followed by Unpivot restores the
// original rows up to ordering.
func Unpivot(table WideTable) []CoefficientRow {
	var rows []CoefficientRow
	for i, site := range table.Sites {
		for j, variable := range table.Variables {
			v := table.Cells[i][j]
			if math.IsNaN(v) {
				continue
			}
			rows = append(rows, CoefficientRow{Site: site, Variable: variable, Coef: v})
		}
	}
	return rows
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
