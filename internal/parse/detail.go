package parse

// Sponsor is the first-listed sponsor of a bill.
type Sponsor struct {
	FullName *string
	Party    *string
	State    *string
	District *string
}

// Detail holds the fields taken from the bill detail document.
type Detail struct {
	IntroducedDate *string
	// Sponsor is nil when the document lists no sponsor.
	Sponsor *Sponsor
}

// BillDetail extracts the introduced date and first sponsor. The bill node is read from
// {"bill": {...}} or from the top-level object itself; an array payload has no bill node.
// Sponsors may be an array or {"item": [...]}.
func BillDetail(raw []byte) (Detail, error) {
	v, err := decode("detail", raw)
	if err != nil {
		return Detail{}, err
	}

	var node map[string]any
	if v.shape == shapeObject {
		node = object(v.object, "bill")
		if node == nil {
			node = v.object
		}
	}

	out := Detail{IntroducedDate: text(node, "introducedDate")}

	var sponsors []map[string]any
	if node != nil {
		sp := classify(node["sponsors"])
		switch sp.shape {
		case shapeArray:
			sponsors = objects(sp.array)
		case shapeObject:
			sponsors = elements(sp.object["item"])
		}
	}
	if len(sponsors) > 0 {
		first := sponsors[0]
		out.Sponsor = &Sponsor{
			FullName: text(first, "fullName"),
			Party:    text(first, "party"),
			State:    text(first, "state"),
			District: text(first, "district"),
		}
	}
	return out, nil
}
