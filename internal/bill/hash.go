package bill

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/hillwatch/internal/hash/sha256"
)

// Hasher produces a digest for a byte slice.
type Hasher interface {
	Hash(data []byte) (string, error)
}

var defaultHasher Hasher = sha256.New()

// Fields returns the canonical fields keyed by their persisted names,
// excluding the content hash itself.
func (d CongressGovData) Fields() map[string]any {
	return map[string]any{
		"billId":                  d.BillID,
		"congress":                d.Congress,
		"billType":                d.BillType,
		"billNumber":              d.BillNumber,
		"title":                   d.Title,
		"originChamber":           d.OriginChamber,
		"introducedDate":          d.IntroducedDate,
		"sponsorFullName":         d.SponsorFullName,
		"sponsorParty":            d.SponsorParty,
		"sponsorState":            d.SponsorState,
		"sponsorDistrict":         d.SponsorDistrict,
		"currentCommitteeName":    d.CurrentCommitteeName,
		"currentSubcommitteeName": d.CurrentSubcommitteeName,
		"latestActionText":        d.LatestActionText,
		"latestActionDate":        d.LatestActionDate,
		"updateDate":              d.UpdateDate,
		"updateDateIncludingText": d.UpdateDateIncludingText,
		"sourceUrl":               d.SourceURL,
		"congressGovUrl":          d.CongressGovURL,
		"committeeLastActionSeen": d.CommitteeLastActionSeen,
	}
}

// ComputeContentHash fingerprints a canonical field set. encoding/json writes
// map keys sorted, so the result does not depend on insertion order.
func ComputeContentHash(fields map[string]any) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	sum, err := defaultHasher.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("hash fields: %w", err)
	}
	return sum, nil
}

// rehashed returns d with ContentHash recomputed from its fields.
func rehashed(d CongressGovData) CongressGovData {
	// Fields holds only strings, ints and string pointers; encoding cannot fail.
	sum, _ := ComputeContentHash(d.Fields())
	d.ContentHash = sum
	return d
}
