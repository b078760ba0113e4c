package phase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/congress"
	"github.com/JakeFAU/hillwatch/internal/parse"
	"github.com/JakeFAU/hillwatch/internal/progress"
)

const senate100 = `{"type":"s","number":"100","title":"Test Act","originChamber":"Senate",` +
	`"latestAction":{"text":"Referred to Committee","actionDate":"2025-01-02"},` +
	`"updateDate":"2025-01-02","url":"https://api.example/bill/119/s/100"}`

func TestParseName(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Name{"list": List, " Detail ": Detail, "COMMITTEES": Committees} {
		got, err := ParseName(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseName("votes")
	require.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Dependencies{Persister: &fakePersister{}, Builder: bill.Builder{Congress: 119}}, nil)
	require.Error(t, err)
	_, err = New(Config{}, Dependencies{Source: newFakeSource(), Builder: bill.Builder{Congress: 119}}, nil)
	require.Error(t, err)
	_, err = New(Config{}, Dependencies{Source: newFakeSource(), Persister: &fakePersister{}}, nil)
	require.Error(t, err)

	r, err := New(Config{}, Dependencies{Source: newFakeSource(), Persister: &fakePersister{}, Builder: bill.Builder{Congress: 119}}, nil)
	require.NoError(t, err)
	require.Equal(t, 6, r.cfg.Workers)
	require.Equal(t, DefaultPageSize, r.cfg.PageSize)
	require.Equal(t, DefaultBillTypes, r.cfg.BillTypes)
}

func TestRunList_CreatesRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}, PageDelay: 200 * time.Millisecond})
	h.source.pages["s"] = map[int]string{0: listPage(senate100)}

	ds := bill.Dataset{}
	sum, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 0, sum.Updated)
	assert.True(t, sum.Saved)
	assert.Len(t, h.persister.Saves(), 1)

	rec, ok := ds["S_100"]
	require.True(t, ok)
	assert.Equal(t, "S_100", rec.CongressGovData.BillID)
	assert.Nil(t, rec.CongressGovData.IntroducedDate)
	assert.NotEmpty(t, rec.CongressGovData.ContentHash)
	assert.Equal(t, bill.NewSchema(nil).Defaults(), rec.CustomData)

	assert.Equal(t, []listCall{{"s", 250, 0}, {"s", 250, 250}}, h.source.listCalls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, h.sleeps)
	assert.Equal(t, progress.StagePhaseDone, h.events.Last().Stage)
}

func TestRunList_Paginates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"hr"}, PageSize: 2})
	h.source.pages["hr"] = map[int]string{
		0: listPage(listEntry("HR", "1", "2025-01-01"), listEntry("HR", "2", "2025-01-01")),
		2: listPage(listEntry("HR", "3", "2025-01-01"), `{"type":"HR"}`),
	}
	ds := bill.Dataset{}
	sum, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"HR_1", "HR_2", "HR_3"}, ds.Keys())
	assert.Equal(t, 3, sum.Created)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []listCall{{"hr", 2, 0}, {"hr", 2, 2}, {"hr", 2, 4}}, h.source.listCalls)
}

func TestRunList_IdempotentAndNonRegressing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	h.source.pages["s"] = map[int]string{0: listPage(senate100)}
	ds := bill.Dataset{}
	_, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)

	h.source.details["S_100"] = `{"bill":{"introducedDate":"2025-01-01","sponsors":[{"fullName":"Jane Doe","party":"D","state":"CA","district":"12"}]}}`
	_, err = h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	enriched := ds["S_100"]

	sum, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, enriched, ds["S_100"], "list keeps detail fields")

	_, err = h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	saves := h.persister.Saves()
	require.Len(t, saves, 4)
	assert.Equal(t, saves[2], saves[3], "repeated list runs converge byte-identically")
}

func TestRunList_TypeFailureIsIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"hr", "s"}})
	h.source.listErr["hr"] = &congress.FetchError{Endpoint: congress.EndpointList, Attempts: 4, Err: errUpstream}
	h.source.pages["s"] = map[int]string{0: listPage(senate100)}

	ds := bill.Dataset{}
	sum, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "HR", sum.Failures[0].Key)
	assert.ErrorIs(t, sum.Failures[0].Err, errUpstream)
	assert.Contains(t, ds, "S_100")
	assert.True(t, sum.Saved)
}

func TestRunList_ParseFailureStopsType(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	h.source.pages["s"] = map[int]string{0: `"maintenance"`}
	sum, err := h.runner.RunList(context.Background(), bill.Dataset{})
	require.NoError(t, err)
	require.Len(t, sum.Failures, 1)
	var perr *parse.ParseError
	assert.ErrorAs(t, sum.Failures[0].Err, &perr)
}

func seedDataset(t *testing.T, h *harness, keys ...string) bill.Dataset {
	t.Helper()
	var entries []string
	for _, k := range keys {
		billType, number, ok := bill.SplitKey(k)
		require.True(t, ok)
		entries = append(entries, listEntry(billType, number, "2025-01-02"))
	}
	h.source.pages["s"] = map[int]string{0: listPage(entries...)}
	ds := bill.Dataset{}
	_, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	h.source.listCalls = nil
	return ds
}

func TestRunDetail_FillsSponsor(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	h.source.pages["s"] = map[int]string{0: listPage(senate100)}
	ds := bill.Dataset{}
	_, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)
	listHash := ds["S_100"].CongressGovData.ContentHash

	h.source.details["S_100"] = `{"bill":{"introducedDate":"2025-01-01","sponsors":[{"fullName":"Jane Doe","party":"D","state":"CA","district":"12"}]}}`
	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Eligible)
	assert.Equal(t, 1, sum.Succeeded)

	cg := ds["S_100"].CongressGovData
	require.NotNil(t, cg.IntroducedDate)
	assert.Equal(t, "2025-01-01", *cg.IntroducedDate)
	require.NotNil(t, cg.SponsorFullName)
	assert.Equal(t, "Jane Doe", *cg.SponsorFullName)
	assert.NotEqual(t, listHash, cg.ContentHash)

	saves := len(h.persister.Saves())
	again, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	assert.Zero(t, again.Eligible)
	assert.False(t, again.Saved)
	assert.Len(t, h.persister.Saves(), saves, "nothing to do means no save")
}

func TestRunDetail_FailuresAreIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}, Workers: 2})
	ds := seedDataset(t, h, "S_1", "S_2", "S_3")
	before := ds["S_2"]

	sponsor := `{"bill":{"introducedDate":"2025-01-01","sponsors":[{"fullName":"Someone"}]}}`
	h.source.details["S_1"] = sponsor
	h.source.fetchErr["S_2"] = &congress.FetchError{Endpoint: congress.EndpointDetail, Attempts: 4, Err: errUpstream}
	h.source.details["S_3"] = sponsor

	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Eligible)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "S_2", sum.Failures[0].Key)
	assert.True(t, sum.Saved)
	assert.Equal(t, before, ds["S_2"])
	assert.NotNil(t, ds["S_1"].CongressGovData.SponsorFullName)
	assert.NotNil(t, ds["S_3"].CongressGovData.SponsorFullName)

	stages := h.events.Stages()
	assert.Equal(t, 2, stages[progress.StageRecordDone])
	assert.Equal(t, 1, stages[progress.StageRecordFailed])
}

func TestRunDetail_ParseErrorIsPerRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	ds := seedDataset(t, h, "S_1")
	h.source.details["S_1"] = `"unexpected"`

	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, sum.Failures, 1)
	var perr *parse.ParseError
	assert.ErrorAs(t, sum.Failures[0].Err, &perr)
}

func TestRunDetail_LimitUsesSortedKeys(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}, Limit: 2})
	ds := seedDataset(t, h, "S_5", "S_1", "S_3", "S_10")
	for _, k := range ds.Keys() {
		h.source.details[k] = `{"introducedDate":"2025-01-01","sponsors":[{"fullName":"x"}]}`
	}

	keys, err := h.runner.Eligible(Detail, ds)
	require.NoError(t, err)
	require.Equal(t, []string{"S_1", "S_10"}, keys)

	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Eligible)
	assert.ElementsMatch(t, []string{"S_1", "S_10"}, h.source.Fetched())
}

func TestRunDetail_TypeFilter(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	ds := seedDataset(t, h, "S_1")
	ds["HR_9"] = bill.NewSchema(nil).NewRecord(bill.CongressGovData{BillID: "HR_9", BillType: "HR", BillNumber: "9"})
	h.source.details["S_1"] = `{"introducedDate":"2025-01-01","sponsors":[{"fullName":"x"}]}`

	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Eligible)
	assert.Equal(t, []string{"S_1"}, h.source.Fetched())
}

func TestRunDetail_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}, Workers: 3})
	keys := []string{"S_1", "S_2", "S_3", "S_4", "S_5", "S_6", "S_7", "S_8", "S_9", "S_10"}
	ds := seedDataset(t, h, keys...)
	for _, k := range keys {
		h.source.details[k] = `{"introducedDate":"2025-01-01","sponsors":[{"fullName":"x"}]}`
	}
	h.source.delay = 10 * time.Millisecond

	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 10, sum.Succeeded)
	assert.LessOrEqual(t, h.source.peak.Load(), int64(3))
	assert.Len(t, h.persister.Saves(), 2, "one save for list, one for detail")
}

func TestRunCommittees_NoCommittees(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	h.source.pages["s"] = map[int]string{0: listPage(senate100)}
	ds := bill.Dataset{}
	_, err := h.runner.RunList(context.Background(), ds)
	require.NoError(t, err)

	h.source.committees["S_100"] = `{"committees":[]}`
	sum, err := h.runner.RunCommittees(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)

	cg := ds["S_100"].CongressGovData
	assert.Nil(t, cg.CurrentCommitteeName)
	require.NotNil(t, cg.CommitteeLastActionSeen)
	assert.Equal(t, *cg.LatestActionDate, *cg.CommitteeLastActionSeen)
}

func TestRunCommittees_SubcommitteeAndConvergence(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	ds := seedDataset(t, h, "S_7")
	h.source.committees["S_7"] = `{"committees":[{"name":"Finance Committee","currentReferrals":true,` +
		`"subcommittees":[{"name":"Subcommittee on Taxation"}]}]}`

	_, err := h.runner.RunCommittees(context.Background(), ds)
	require.NoError(t, err)
	cg := ds["S_7"].CongressGovData
	require.NotNil(t, cg.CurrentCommitteeName)
	assert.Equal(t, "Finance Committee", *cg.CurrentCommitteeName)
	assert.Equal(t, "Subcommittee on Taxation", *cg.CurrentSubcommitteeName)

	again, err := h.runner.RunCommittees(context.Background(), ds)
	require.NoError(t, err)
	assert.Zero(t, again.Eligible)
}

func TestEnrich_EmptyStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	_, err := h.runner.RunDetail(context.Background(), bill.Dataset{})
	require.ErrorIs(t, err, ErrEmptyStore)
	_, err = h.runner.Run(context.Background(), Committees, bill.Dataset{})
	require.ErrorIs(t, err, ErrEmptyStore)
	require.Empty(t, h.persister.Saves())
}

func TestEnrich_PersistenceErrorIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}})
	ds := seedDataset(t, h, "S_1")
	h.source.details["S_1"] = `{"introducedDate":"2025-01-01","sponsors":[{"fullName":"x"}]}`
	h.persister.err = errors.New("disk full")

	sum, err := h.runner.RunDetail(context.Background(), ds)
	require.Error(t, err)
	assert.False(t, sum.Saved)
	last := h.events.Last()
	assert.Equal(t, progress.StagePhaseError, last.Stage)
	assert.Contains(t, last.Note, "disk full")
}

func TestEnrich_CancellationStillSaves(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{BillTypes: []string{"s"}, Workers: 1})
	ds := seedDataset(t, h, "S_1", "S_2", "S_3")
	for _, k := range ds.Keys() {
		h.source.details[k] = `{"introducedDate":"2025-01-01","sponsors":[{"fullName":"x"}]}`
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.runner.RunDetail(ctx, ds)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Saved)
	assert.Equal(t, sum.Eligible, sum.Succeeded+sum.Failed+sum.Skipped)
}

func TestRun_UnknownPhase(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	_, err := h.runner.Run(context.Background(), Name("votes"), bill.Dataset{})
	require.Error(t, err)
}
