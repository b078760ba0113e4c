package bill

import "strings"

// NeedsDetail reports whether the detail phase still has work for d.
func NeedsDetail(d CongressGovData) bool {
	return d.IntroducedDate == nil || d.SponsorFullName == nil
}

// NeedsCommittees reports whether the committees phase still has work for d:
// no current committee yet, or a latest action newer than the last one checked.
func NeedsCommittees(d CongressGovData) bool {
	if d.CurrentCommitteeName == nil {
		return true
	}
	if d.LatestActionDate == nil || *d.LatestActionDate == "" {
		return false
	}
	return d.CommitteeLastActionSeen == nil || *d.CommitteeLastActionSeen != *d.LatestActionDate
}

// Predicate selects records for a phase.
type Predicate func(CongressGovData) bool

// Eligible returns the sorted keys whose bill type is in types (any type when
// empty) and whose canonical data satisfies pred.
func (d Dataset) Eligible(types []string, pred Predicate) []string {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[strings.ToUpper(t)] = struct{}{}
	}
	var out []string
	for _, key := range d.Keys() {
		billType, _, ok := SplitKey(key)
		if !ok {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToUpper(billType)]; !ok {
				continue
			}
		}
		if pred(d[key].CongressGovData) {
			out = append(out, key)
		}
	}
	return out
}
