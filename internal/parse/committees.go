package parse

import (
	"regexp"
	"strings"
)

var subcommitteePattern = regexp.MustCompile(`Subcommittee on ([^.;\n]+)`)

// Committees is the committee currently holding the referral.
type Committees struct {
	CommitteeName    *string
	SubcommitteeName *string
}

// BillCommittees extracts the current committee and subcommittee. The committee list is
// read from, in order:
//   - a top-level array
//   - {"committees": [...]}
//   - {"committees": {"committee" | "item": [...] | {...}}}
//   - {"committee": [...] | {...}}
//
// The current committee is the first one flagged with currentReferrals=true, else the
// first listed. When no structured subcommittee is present, latestActionText is searched
// for "Subcommittee on X" as a best-effort fallback.
func BillCommittees(raw []byte, latestActionText *string) (Committees, error) {
	v, err := decode("committees", raw)
	if err != nil {
		return Committees{}, err
	}

	var list []map[string]any
	switch v.shape {
	case shapeArray:
		list = objects(v.array)
	case shapeObject:
		list = committeeList(v.object)
	}

	var out Committees
	current := currentCommittee(list)
	if current != nil {
		out.CommitteeName = text(current, "name")
		out.SubcommitteeName = subcommitteeName(current)
	}
	if out.SubcommitteeName == nil && latestActionText != nil {
		if m := subcommitteePattern.FindStringSubmatch(*latestActionText); m != nil {
			name := "Subcommittee on " + strings.TrimSpace(m[1])
			out.SubcommitteeName = &name
		}
	}
	return out, nil
}

func committeeList(obj map[string]any) []map[string]any {
	node, ok := obj["committees"]
	if !ok {
		return elements(obj["committee"])
	}
	c := classify(node)
	switch c.shape {
	case shapeArray:
		return objects(c.array)
	case shapeObject:
		if inner, ok := c.object["committee"]; ok {
			return elements(inner)
		}
		if inner, ok := c.object["item"]; ok {
			return elements(inner)
		}
	}
	return nil
}

func currentCommittee(list []map[string]any) map[string]any {
	for _, c := range list {
		if flagged, ok := c["currentReferrals"].(bool); ok && flagged {
			return c
		}
	}
	if len(list) > 0 {
		return list[0]
	}
	return nil
}

func subcommitteeName(committee map[string]any) *string {
	for _, key := range []string{"subcommittee", "subcommittees"} {
		node := classify(committee[key])
		switch node.shape {
		case shapeArray:
			if subs := objects(node.array); len(subs) > 0 {
				if name := text(subs[0], "name"); name != nil {
					return name
				}
			}
		case shapeObject:
			if name := text(node.object, "name"); name != nil {
				return name
			}
			if subs := elements(node.object["item"]); len(subs) > 0 {
				if name := text(subs[0], "name"); name != nil {
					return name
				}
			}
		}
	}
	return nil
}
