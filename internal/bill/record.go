// Package bill defines the tracked bill record, its key and fingerprint, and the
// rules for building, merging and selecting records across pipeline phases.
package bill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	fieldCongressGovData = "congressGovData"
	fieldCustomData      = "customData"
)

// CongressGovData holds the canonical, API-derived attributes of a bill.
// Absent values are nil and persist as JSON null.
type CongressGovData struct {
	BillID                  string  `json:"billId"`
	Congress                int     `json:"congress"`
	BillType                string  `json:"billType"`
	BillNumber              string  `json:"billNumber"`
	Title                   *string `json:"title"`
	OriginChamber           *string `json:"originChamber"`
	IntroducedDate          *string `json:"introducedDate"`
	SponsorFullName         *string `json:"sponsorFullName"`
	SponsorParty            *string `json:"sponsorParty"`
	SponsorState            *string `json:"sponsorState"`
	SponsorDistrict         *string `json:"sponsorDistrict"`
	CurrentCommitteeName    *string `json:"currentCommitteeName"`
	CurrentSubcommitteeName *string `json:"currentSubcommitteeName"`
	LatestActionText        *string `json:"latestActionText"`
	LatestActionDate        *string `json:"latestActionDate"`
	UpdateDate              *string `json:"updateDate"`
	UpdateDateIncludingText *string `json:"updateDateIncludingText"`
	SourceURL               *string `json:"sourceUrl"`
	CongressGovURL          *string `json:"congressGovUrl"`
	ContentHash             string  `json:"contentHash"`
	CommitteeLastActionSeen *string `json:"committeeLastActionSeen"`
}

// Record is one persisted bill: canonical data plus opaque annotation data.
// Top-level keys written by other tools are kept in Extra and written back.
type Record struct {
	CongressGovData CongressGovData
	CustomData      CustomData
	Extra           map[string]json.RawMessage
}

// Dataset maps record keys to records.
type Dataset map[string]Record

// MakeKey derives the record key {BILLTYPE}_{number}.
func MakeKey(billType, number string) string {
	return strings.ToUpper(billType) + "_" + number
}

// SplitKey returns the bill type and number encoded in key.
func SplitKey(key string) (billType, number string, ok bool) {
	billType, number, ok = strings.Cut(key, "_")
	if !ok || billType == "" || number == "" {
		return "", "", false
	}
	return billType, number, true
}

// Keys returns the dataset keys in lexicographic order.
func (d Dataset) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON writes the record with any preserved foreign keys.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+2)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[fieldCongressGovData] = r.CongressGovData
	custom := r.CustomData
	if custom == nil {
		custom = CustomData{}
	}
	out[fieldCustomData] = custom

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads a record, keeping unknown top-level keys in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	*r = Record{}
	if cg, ok := raw[fieldCongressGovData]; ok && !isNull(cg) {
		if err := json.Unmarshal(cg, &r.CongressGovData); err != nil {
			return fmt.Errorf("decode %s: %w", fieldCongressGovData, err)
		}
	}
	if cd, ok := raw[fieldCustomData]; ok {
		if err := json.Unmarshal(cd, &r.CustomData); err != nil {
			return fmt.Errorf("decode %s: %w", fieldCustomData, err)
		}
	}
	delete(raw, fieldCongressGovData)
	delete(raw, fieldCustomData)
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func strPtr(s string) *string {
	return &s
}
