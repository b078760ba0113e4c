package bill

import (
	"bytes"
	"encoding/json"
)

// Annotation sections.
const (
	SectionReview        = "Review"
	SectionOutreach      = "Outreach"
	SectionFinalTracking = "FinalTracking"
)

// KeyExpertOptions is the pipeline-owned list of selectable experts.
const KeyExpertOptions = "CeiExpertOptions"

// LegacyKeys are deprecated top-level annotation keys dropped on merge.
var LegacyKeys = []string{"watchlist", "ceiExpertNotes", "priorityLevel"}

// DefaultExpertOptions is the master list used when none is configured.
var DefaultExpertOptions = []string{
	"Iain Murray",
	"John Berlau",
	"Richard Morrison",
	"Ryan Young",
	"Sean Higgins",
	"Stone Washington",
	"Clyde Wayne Crews",
	"Alex Reinauer",
	"Jessica Melugin",
	"Jeremy Nighossian",
	"Ondray Harris",
	"Devin Watkins",
	"David McFadden",
	"Ben Lieberman",
	"Daren Bakst",
	"Jacob Tomasulo",
	"Marlo Lewis",
	"Paige Lambermont",
}

// CustomData is annotation data owned by the presentation layer. Values are
// decoded generically with numbers kept verbatim so they re-encode unchanged.
type CustomData map[string]any

// UnmarshalJSON decodes an object; any other JSON value yields an empty map.
func (c *CustomData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	m, ok := v.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	*c = m
	return nil
}

type defaultField struct {
	key   string
	value func(s Schema) any
}

func constant(v any) func(Schema) any {
	return func(Schema) any { return v }
}

var schemaSections = []struct {
	name   string
	fields []defaultField
}{
	{SectionReview, []defaultField{
		{"WatchList", constant(false)},
		{"CeiExpert", func(Schema) any { return []any{} }},
		{KeyExpertOptions, func(s Schema) any { return s.options() }},
		{"StatementRequested", constant(false)},
		{"StatementRequestedDate", constant(nil)},
		{"CEIExpertAcceptOrReject", constant(false)},
		{"Review_Done", constant(false)},
	}},
	{SectionOutreach, []defaultField{
		{"Worked_Directly_with_Office", constant(false)},
		{"Statement_Complete", constant(false)},
		{"Statement_Complete_Date", constant(nil)},
		{"Statement_Emailed_Directly", constant(false)},
		{"Statement_Emailed_Quorum", constant(false)},
		{"InternalLed_Coalition_Letter", constant(false)},
		{"ExternalLed_Coalition_Letter", constant(false)},
		{"Support_Posted_Website", constant(false)},
		{"Other_Support", constant("")},
		{"Outreach_Done", constant(false)},
	}},
	{SectionFinalTracking, []defaultField{
		{"Press_Release_Mention", constant(false)},
		{"Press Release Mention_Source", constant("")},
		{"Any_Public_Mention", constant(false)},
		{"Any_Public_Mention_Source", constant("")},
		{"Notes_or_Other", constant("")},
		{"Public_Mention_Date", constant(nil)},
		{"Final_Tracking_Done", constant(false)},
	}},
}

// Schema describes the annotation structure the pipeline maintains.
type Schema struct {
	ExpertOptions []string
}

// NewSchema returns a schema using options, or the default master list when empty.
func NewSchema(options []string) Schema {
	if len(options) == 0 {
		options = DefaultExpertOptions
	}
	return Schema{ExpertOptions: append([]string(nil), options...)}
}

func (s Schema) options() []any {
	opts := s.ExpertOptions
	if len(opts) == 0 {
		opts = DefaultExpertOptions
	}
	out := make([]any, len(opts))
	for i, o := range opts {
		out[i] = o
	}
	return out
}

// Defaults returns a fresh annotation block with every documented default.
func (s Schema) Defaults() CustomData {
	out := make(CustomData, len(schemaSections))
	for _, sec := range schemaSections {
		m := make(map[string]any, len(sec.fields))
		for _, f := range sec.fields {
			m[f.key] = f.value(s)
		}
		out[sec.name] = m
	}
	return out
}

// Ensure upgrades cd to the current schema without discarding user values:
// legacy top-level keys are removed, missing sections and fields are
// defaulted, and the expert option list is re-synced. The input is not
// mutated. The boolean reports whether anything changed.
func (s Schema) Ensure(cd CustomData) (CustomData, bool) {
	out := make(CustomData, len(cd)+len(schemaSections))
	for k, v := range cd {
		out[k] = v
	}
	changed := false
	for _, k := range LegacyKeys {
		if _, ok := out[k]; ok {
			delete(out, k)
			changed = true
		}
	}

	for _, sec := range schemaSections {
		existing, ok := out[sec.name].(map[string]any)
		if !ok {
			existing = nil
			changed = true
		}
		m := make(map[string]any, len(existing)+len(sec.fields))
		for k, v := range existing {
			m[k] = v
		}
		for _, f := range sec.fields {
			if _, ok := m[f.key]; !ok {
				m[f.key] = f.value(s)
				changed = true
			}
		}
		out[sec.name] = m
	}

	review := out[SectionReview].(map[string]any)
	opts := s.options()
	if !sameOptions(review[KeyExpertOptions], opts) {
		review[KeyExpertOptions] = opts
		changed = true
	}
	return out, changed
}

func sameOptions(current any, want []any) bool {
	list, ok := current.([]any)
	if !ok || len(list) != len(want) {
		return false
	}
	for i := range list {
		if list[i] != want[i] {
			return false
		}
	}
	return true
}
