package parse

import "strings"

// ListItem is one bill summary from a list page.
type ListItem struct {
	Type                    string
	Number                  string
	Title                   *string
	OriginChamber           *string
	LatestActionText        *string
	LatestActionDate        *string
	UpdateDate              *string
	UpdateDateIncludingText *string
	URL                     *string
}

// ListPage is the parsed content of one list response.
type ListPage struct {
	Items []ListItem
	// Skipped counts summaries that lacked a bill type or number.
	Skipped int
}

// ListItems extracts the bill summaries from a list page. Accepted shapes:
//   - an array of summaries
//   - {"bills": [...]}
//   - {"bills": {"bill": [...] | {...}}}
//   - {"bill": [...] | {...}}
//
// Any other object yields an empty page.
func ListItems(raw []byte) (ListPage, error) {
	v, err := decode("list", raw)
	if err != nil {
		return ListPage{}, err
	}

	var summaries []map[string]any
	switch v.shape {
	case shapeArray:
		summaries = objects(v.array)
	case shapeObject:
		bills := classify(v.object["bills"])
		switch bills.shape {
		case shapeArray:
			summaries = objects(bills.array)
		case shapeObject:
			summaries = elements(bills.object["bill"])
		default:
			summaries = elements(v.object["bill"])
		}
	}

	page := ListPage{Items: make([]ListItem, 0, len(summaries))}
	for _, m := range summaries {
		item, ok := listItem(m)
		if !ok {
			page.Skipped++
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func listItem(m map[string]any) (ListItem, bool) {
	billType := text(m, "type")
	number := text(m, "number")
	if billType == nil || number == nil || strings.TrimSpace(*billType) == "" || strings.TrimSpace(*number) == "" {
		return ListItem{}, false
	}
	latest := object(m, "latestAction")
	return ListItem{
		Type:                    strings.TrimSpace(*billType),
		Number:                  strings.TrimSpace(*number),
		Title:                   text(m, "title"),
		OriginChamber:           text(m, "originChamber"),
		LatestActionText:        text(latest, "text"),
		LatestActionDate:        text(latest, "actionDate"),
		UpdateDate:              text(m, "updateDate"),
		UpdateDateIncludingText: text(m, "updateDateIncludingText"),
		URL:                     text(m, "url"),
	}, true
}
