package phase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/progress"
	"github.com/JakeFAU/hillwatch/internal/store"
)

type listCall struct {
	billType string
	limit    int
	offset   int
}

type fakeSource struct {
	mu         sync.Mutex
	pages      map[string]map[int]string
	listErr    map[string]error
	details    map[string]string
	committees map[string]string
	fetchErr   map[string]error
	delay      time.Duration

	listCalls []listCall
	fetched   []string
	inflight  atomic.Int64
	peak      atomic.Int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:      map[string]map[int]string{},
		listErr:    map[string]error{},
		details:    map[string]string{},
		committees: map[string]string{},
		fetchErr:   map[string]error{},
	}
}

func (f *fakeSource) ListBills(_ context.Context, billType string, limit, offset int) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, listCall{billType: billType, limit: limit, offset: offset})
	if err := f.listErr[billType]; err != nil {
		return nil, err
	}
	if page, ok := f.pages[billType][offset]; ok {
		return json.RawMessage(page), nil
	}
	return json.RawMessage(`{"bills":[]}`), nil
}

func (f *fakeSource) BillDetail(ctx context.Context, billType, number string) (json.RawMessage, error) {
	return f.fetch(ctx, bill.MakeKey(billType, number), f.details)
}

func (f *fakeSource) BillCommittees(ctx context.Context, billType, number string) (json.RawMessage, error) {
	return f.fetch(ctx, bill.MakeKey(billType, number), f.committees)
}

func (f *fakeSource) fetch(ctx context.Context, key string, payloads map[string]string) (json.RawMessage, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, key)
	if err := f.fetchErr[key]; err != nil {
		return nil, err
	}
	payload, ok := payloads[key]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", key)
	}
	return json.RawMessage(payload), nil
}

func (f *fakeSource) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type fakePersister struct {
	mu    sync.Mutex
	saves [][]byte
	err   error
}

func (p *fakePersister) Save(_ context.Context, ds bill.Dataset) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	b, err := store.Encode(ds)
	if err != nil {
		return err
	}
	p.saves = append(p.saves, b)
	return nil
}

func (p *fakePersister) Saves() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.saves...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages() map[progress.Stage]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[progress.Stage]int{}
	for _, evt := range e.events {
		out[evt.Stage]++
	}
	return out
}

func (e *recordingEmitter) Last() progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

type harness struct {
	runner    *Runner
	source    *fakeSource
	persister *fakePersister
	events    *recordingEmitter
	sleeps    []time.Duration
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		source:    newFakeSource(),
		persister: &fakePersister{},
		events:    &recordingEmitter{},
	}
	runner, err := New(cfg, Dependencies{
		Source:    h.source,
		Persister: h.persister,
		Builder:   bill.NewBuilder(119, "https://api.example/v3", ""),
		Schema:    bill.NewSchema(nil),
		Emitter:   h.events,
	}, nil)
	require.NoError(t, err)
	runner.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	h.runner = runner
	return h
}

func listPage(items ...string) string {
	out := `{"bills":[`
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out + `],"pagination":{"count":1}}`
}

func listEntry(billType, number, actionDate string) string {
	return fmt.Sprintf(`{"type":%q,"number":%q,"title":"Bill %s","originChamber":"Senate",`+
		`"latestAction":{"text":"Referred to Committee","actionDate":%q},"updateDate":"2025-01-02",`+
		`"url":"https://api.example/bill/119/%s/%s"}`, billType, number, number, actionDate, billType, number)
}

var errUpstream = errors.New("upstream exploded")
