package bill

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/hillwatch/internal/parse"
)

// Default upstream locations.
const (
	DefaultAPIBase = "https://api.congress.gov/v3"
	DefaultWebBase = "https://www.congress.gov"
)

var slugs = map[string]string{
	"hr":      "house-bill",
	"s":       "senate-bill",
	"hjres":   "house-joint-resolution",
	"sjres":   "senate-joint-resolution",
	"hconres": "house-concurrent-resolution",
	"sconres": "senate-concurrent-resolution",
}

// KnownType reports whether t (lower case) has a congress.gov URL slug.
func KnownType(t string) bool {
	_, ok := slugs[t]
	return ok
}

// Builder derives canonical data for one congress.
type Builder struct {
	Congress int
	APIBase  string
	WebBase  string
}

// NewBuilder returns a Builder, substituting defaults for empty bases.
func NewBuilder(congress int, apiBase, webBase string) Builder {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if webBase == "" {
		webBase = DefaultWebBase
	}
	return Builder{
		Congress: congress,
		APIBase:  strings.TrimRight(apiBase, "/"),
		WebBase:  strings.TrimRight(webBase, "/"),
	}
}

// FromListItem builds canonical data from a list item. Fields owned by the
// detail and committees phases are carried forward from existing.
func (b Builder) FromListItem(item parse.ListItem, existing *CongressGovData) CongressGovData {
	billType := strings.ToUpper(item.Type)
	lower := strings.ToLower(item.Type)

	d := CongressGovData{
		BillID:                  MakeKey(item.Type, item.Number),
		Congress:                b.Congress,
		BillType:                billType,
		BillNumber:              item.Number,
		Title:                   item.Title,
		OriginChamber:           item.OriginChamber,
		LatestActionText:        item.LatestActionText,
		LatestActionDate:        item.LatestActionDate,
		UpdateDate:              item.UpdateDate,
		UpdateDateIncludingText: item.UpdateDateIncludingText,
		CongressGovURL:          b.CongressGovURL(lower, item.Number),
	}
	if item.URL != nil && *item.URL != "" {
		d.SourceURL = item.URL
	} else {
		d.SourceURL = strPtr(b.SourceURL(lower, item.Number))
	}

	if existing != nil {
		d.IntroducedDate = existing.IntroducedDate
		d.SponsorFullName = existing.SponsorFullName
		d.SponsorParty = existing.SponsorParty
		d.SponsorState = existing.SponsorState
		d.SponsorDistrict = existing.SponsorDistrict
		d.CurrentCommitteeName = existing.CurrentCommitteeName
		d.CurrentSubcommitteeName = existing.CurrentSubcommitteeName
		d.CommitteeLastActionSeen = existing.CommitteeLastActionSeen
	}
	return rehashed(d)
}

// SourceURL is the API location of a bill.
func (b Builder) SourceURL(billType, number string) string {
	return fmt.Sprintf("%s/bill/%d/%s/%s", b.APIBase, b.Congress, strings.ToLower(billType), number)
}

// CongressGovURL is the public web page of a bill, or nil for unknown types.
func (b Builder) CongressGovURL(billType, number string) *string {
	slug, ok := slugs[strings.ToLower(billType)]
	if !ok {
		return nil
	}
	return strPtr(fmt.Sprintf("%s/bill/%d%s-congress/%s/%s", b.WebBase, b.Congress, ordinal(b.Congress), slug, number))
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// ApplyDetail overlays detail fields. A missing introduced date keeps the
// stored one; sponsor fields are replaced together only when a sponsor is listed.
func ApplyDetail(d CongressGovData, detail parse.Detail) CongressGovData {
	if detail.IntroducedDate != nil {
		d.IntroducedDate = detail.IntroducedDate
	}
	if sp := detail.Sponsor; sp != nil {
		d.SponsorFullName = sp.FullName
		d.SponsorParty = sp.Party
		d.SponsorState = sp.State
		d.SponsorDistrict = sp.District
	}
	return rehashed(d)
}

// ApplyCommittees overlays the current referral and marks the latest action
// date as checked.
func ApplyCommittees(d CongressGovData, c parse.Committees) CongressGovData {
	d.CurrentCommitteeName = c.CommitteeName
	d.CurrentSubcommitteeName = c.SubcommitteeName
	d.CommitteeLastActionSeen = d.LatestActionDate
	return rehashed(d)
}
