package stats

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hillwatch/internal/bill"
)

func ptr(s string) *string { return &s }

func record(billType, number string, mutate func(*bill.CongressGovData)) bill.Record {
	d := bill.CongressGovData{
		BillID:     bill.MakeKey(billType, number),
		Congress:   119,
		BillType:   billType,
		BillNumber: number,
	}
	if mutate != nil {
		mutate(&d)
	}
	return bill.Record{CongressGovData: d}
}

func TestPhasePredicates(t *testing.T) {
	t.Parallel()

	listed := bill.CongressGovData{BillID: "S_1", BillType: "s", BillNumber: "1"}
	assert.True(t, PastList(listed))
	assert.False(t, PastList(bill.CongressGovData{}))

	assert.False(t, PastDetail(listed))
	detailed := listed
	detailed.IntroducedDate = ptr("2025-01-03")
	assert.False(t, PastDetail(detailed), "sponsor is required too")
	detailed.SponsorFullName = ptr("Sen. Doe")
	assert.True(t, PastDetail(detailed))
	detailed.SponsorFullName = ptr("")
	assert.False(t, PastDetail(detailed))

	assert.False(t, PastCommittees(listed))
	named := listed
	named.CurrentCommitteeName = ptr("Finance Committee")
	assert.True(t, PastCommittees(named))

	checked := listed
	checked.LatestActionDate = ptr("2025-02-01")
	checked.CommitteeLastActionSeen = ptr("2025-02-01")
	assert.True(t, PastCommittees(checked))
	checked.LatestActionDate = ptr("2025-03-01")
	assert.False(t, PastCommittees(checked), "a newer action needs a fresh check")
}

func TestCompute(t *testing.T) {
	t.Parallel()

	ds := bill.Dataset{
		"S_1": record("s", "1", func(d *bill.CongressGovData) {
			d.IntroducedDate = ptr("2025-01-03")
			d.SponsorFullName = ptr("Sen. Doe")
			d.CurrentCommitteeName = ptr("Finance Committee")
			d.UpdateDateIncludingText = ptr("2025-08-09T11:03:18Z")
		}),
		"S_2": record("s", "2", func(d *bill.CongressGovData) {
			d.UpdateDateIncludingText = ptr("2025-08-10")
		}),
		"HR_1": record("hr", "1", func(d *bill.CongressGovData) {
			d.UpdateDateIncludingText = ptr("not a date")
		}),
		"HRES_4": record("hres", "4", nil),
		"X":      {},
	}

	rep := Compute(ds)

	assert.Equal(t, Counts{Total: 5, List: 4, Detail: 1, Committees: 1}, rep.Overall)
	require.NotNil(t, rep.LatestUpdate)
	assert.Equal(t, time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC), *rep.LatestUpdate)

	types := make([]string, 0, len(rep.ByType))
	for _, row := range rep.ByType {
		types = append(types, row.Type)
	}
	assert.Equal(t, []string{"S", "HR", "SJRES", "HJRES", "HCONRES", "SCONRES", "HRES", "UNKNOWN"}, types)
	assert.Equal(t, Counts{Total: 2, List: 2, Detail: 1, Committees: 1}, rep.ByType[0].Counts)
	assert.Equal(t, Counts{Total: 1, List: 1}, rep.ByType[1].Counts)
	assert.Equal(t, Counts{}, rep.ByType[2].Counts)
	assert.Equal(t, Counts{Total: 1}, rep.ByType[7].Counts)
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	rep := Compute(bill.Dataset{})
	assert.Zero(t, rep.Overall.Total)
	assert.Nil(t, rep.LatestUpdate)
	assert.Len(t, rep.ByType, len(TypeOrder))
	assert.Zero(t, rep.Overall.Percent(0))
}

func TestPercent(t *testing.T) {
	t.Parallel()

	c := Counts{Total: 4}
	assert.InDelta(t, 25.0, c.Percent(1), 1e-9)
	assert.InDelta(t, 100.0, c.Percent(4), 1e-9)
}

func TestParseAPITime(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"2025-08-09T11:03:18Z": time.Date(2025, 8, 9, 11, 3, 18, 0, time.UTC),
		"2025-08-09T11:03:18":  time.Date(2025, 8, 9, 11, 3, 18, 0, time.UTC),
		"2025-08-09":           time.Date(2025, 8, 9, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseAPITime(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), in)
	}
	for _, in := range []string{"", "yesterday", "08/09/2025"} {
		_, ok := ParseAPITime(in)
		assert.False(t, ok, in)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	rep := Compute(bill.Dataset{"S_1": record("s", "1", nil)})
	rep.Path = "/data/bills_119.json"

	var buf bytes.Buffer
	Render(&buf, rep)
	out := buf.String()

	assert.Contains(t, out, "File: /data/bills_119.json")
	assert.Contains(t, out, "Last file save: N/A")
	assert.Contains(t, out, "Latest API update in store: N/A")
	assert.Contains(t, out, "Past list")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "SCONRES")
}
