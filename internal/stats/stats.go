// Package stats summarizes how far each stored bill has progressed through
// the pipeline phases.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/hillwatch/internal/bill"
)

// TypeOrder is the display order for known bill types. Other types follow, sorted.
var TypeOrder = []string{"S", "HR", "SJRES", "HJRES", "HCONRES", "SCONRES"}

const unknownType = "UNKNOWN"

// Counts tallies records past each phase.
type Counts struct {
	Total      int `json:"total"`
	List       int `json:"list"`
	Detail     int `json:"detail"`
	Committees int `json:"committees"`
}

// Percent returns n as a percentage of Total, or 0 for an empty tally.
func (c Counts) Percent(n int) float64 {
	if c.Total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(c.Total)
}

func (c *Counts) add(d bill.CongressGovData) {
	c.Total++
	if PastList(d) {
		c.List++
	}
	if PastDetail(d) {
		c.Detail++
	}
	if PastCommittees(d) {
		c.Committees++
	}
}

// TypeRow is the tally for one bill type.
type TypeRow struct {
	Type string `json:"type"`
	Counts
}

// Report is the completion summary of a dataset.
type Report struct {
	Path string `json:"path,omitempty"`
	// ModTime is the zero time when the file does not exist.
	ModTime      time.Time  `json:"modTime"`
	LatestUpdate *time.Time `json:"latestUpdate"`
	Overall      Counts     `json:"overall"`
	ByType       []TypeRow  `json:"byType"`
}

// PastList reports whether the record carries canonical list data.
func PastList(d bill.CongressGovData) bool {
	return d.BillID != "" || d.BillType != "" || d.BillNumber != ""
}

// PastDetail reports whether detail enrichment has filled the record.
func PastDetail(d bill.CongressGovData) bool {
	return nonEmpty(d.IntroducedDate) && nonEmpty(d.SponsorFullName)
}

// PastCommittees reports whether committees were checked for the latest action.
// A bill with no referral still counts once its marker matches.
func PastCommittees(d bill.CongressGovData) bool {
	if d.CurrentCommitteeName != nil {
		return true
	}
	return d.LatestActionDate != nil && d.CommitteeLastActionSeen != nil &&
		*d.LatestActionDate == *d.CommitteeLastActionSeen
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

// Compute tallies ds.
func Compute(ds bill.Dataset) Report {
	var rep Report
	byType := map[string]*Counts{}
	for _, rec := range ds {
		d := rec.CongressGovData
		rep.Overall.add(d)

		bt := strings.ToUpper(strings.TrimSpace(d.BillType))
		if bt == "" {
			bt = unknownType
		}
		c, ok := byType[bt]
		if !ok {
			c = &Counts{}
			byType[bt] = c
		}
		c.add(d)

		if d.UpdateDateIncludingText == nil {
			continue
		}
		if ts, ok := ParseAPITime(*d.UpdateDateIncludingText); ok {
			if rep.LatestUpdate == nil || ts.After(*rep.LatestUpdate) {
				rep.LatestUpdate = &ts
			}
		}
	}
	for _, bt := range orderedTypes(byType) {
		var c Counts
		if got, ok := byType[bt]; ok {
			c = *got
		}
		rep.ByType = append(rep.ByType, TypeRow{Type: bt, Counts: c})
	}
	return rep
}

func orderedTypes(seen map[string]*Counts) []string {
	known := make(map[string]bool, len(TypeOrder))
	out := make([]string, 0, len(TypeOrder)+len(seen))
	for _, bt := range TypeOrder {
		known[bt] = true
		out = append(out, bt)
	}
	var extra []string
	for bt := range seen {
		if !known[bt] {
			extra = append(extra, bt)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

var apiTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseAPITime accepts the ISO datetime and date-only forms the API emits.
func ParseAPITime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range apiTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func pct(c Counts, n int) string {
	return fmt.Sprintf("%5.1f%%", c.Percent(n))
}

// Render writes the report as text tables.
func Render(w io.Writer, rep Report) {
	fmt.Fprintln(w, "=== HillWatch database stats ===")
	if rep.Path != "" {
		fmt.Fprintf(w, "File: %s\n", rep.Path)
	}
	if rep.ModTime.IsZero() {
		fmt.Fprintln(w, "Last file save: N/A")
	} else {
		fmt.Fprintf(w, "Last file save: %s\n", rep.ModTime.Local().Format(time.DateTime))
	}
	latest := "N/A"
	if rep.LatestUpdate != nil {
		latest = rep.LatestUpdate.Format(time.DateTime)
	}
	fmt.Fprintf(w, "Latest API update in store: %s\n\n", latest)

	overall := table.NewWriter()
	overall.SetOutputMirror(w)
	overall.SetStyle(table.StyleLight)
	overall.SetTitle("Overall")
	overall.AppendHeader(table.Row{"Stage", "Bills", "Percent"})
	o := rep.Overall
	overall.AppendRows([]table.Row{
		{"Total", o.Total, ""},
		{"Past list", o.List, pct(o, o.List)},
		{"Past detail", o.Detail, pct(o, o.Detail)},
		{"Past committees", o.Committees, pct(o, o.Committees)},
	})
	overall.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	overall.Render()
	fmt.Fprintln(w)

	byType := table.NewWriter()
	byType.SetOutputMirror(w)
	byType.SetStyle(table.StyleLight)
	byType.SetTitle("By bill type")
	byType.AppendHeader(table.Row{"Type", "Total", "List", "Detail", "Committees", "Detail %", "Committees %"})
	for _, row := range rep.ByType {
		byType.AppendRow(table.Row{
			row.Type, row.Total, row.List, row.Detail, row.Committees,
			pct(row.Counts, row.Detail), pct(row.Counts, row.Committees),
		})
	}
	byType.Render()
}
