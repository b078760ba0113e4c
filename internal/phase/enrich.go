package phase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/dispatcher"
	"github.com/JakeFAU/hillwatch/internal/parse"
)

// task is one record snapshot handed to a worker. Workers never touch the
// dataset; they return the updated canonical data for the collector to merge.
type task struct {
	key  string
	data bill.CongressGovData
}

type taskResult struct {
	data bill.CongressGovData
	err  error
	dur  time.Duration
}

type enricher func(ctx context.Context, billType, number string, current bill.CongressGovData) (bill.CongressGovData, error)

// RunDetail fills introduced date and sponsor for every record missing either.
func (r *Runner) RunDetail(ctx context.Context, ds bill.Dataset) (Summary, error) {
	return r.enrich(ctx, ds, Detail, bill.NeedsDetail, r.fetchDetail)
}

// RunCommittees refreshes the current committee referral for records without
// one or whose latest action has not been checked yet.
func (r *Runner) RunCommittees(ctx context.Context, ds bill.Dataset) (Summary, error) {
	return r.enrich(ctx, ds, Committees, bill.NeedsCommittees, r.fetchCommittees)
}

func (r *Runner) fetchDetail(
	ctx context.Context,
	billType, number string,
	current bill.CongressGovData,
) (bill.CongressGovData, error) {
	raw, err := r.source.BillDetail(ctx, billType, number)
	if err != nil {
		return current, err
	}
	detail, err := parse.BillDetail(raw)
	if err != nil {
		return current, err
	}
	return bill.ApplyDetail(current, detail), nil
}

func (r *Runner) fetchCommittees(
	ctx context.Context,
	billType, number string,
	current bill.CongressGovData,
) (bill.CongressGovData, error) {
	raw, err := r.source.BillCommittees(ctx, billType, number)
	if err != nil {
		return current, err
	}
	committees, err := parse.BillCommittees(raw, current.LatestActionText)
	if err != nil {
		return current, err
	}
	return bill.ApplyCommittees(current, committees), nil
}

// Eligible returns the keys the named phase would process, after the
// configured type filter and limit.
func (r *Runner) Eligible(name Name, ds bill.Dataset) ([]string, error) {
	var pred bill.Predicate
	switch name {
	case Detail:
		pred = bill.NeedsDetail
	case Committees:
		pred = bill.NeedsCommittees
	default:
		return nil, fmt.Errorf("phase %q has no eligibility predicate", name)
	}
	return r.selectKeys(ds, pred), nil
}

func (r *Runner) selectKeys(ds bill.Dataset, pred bill.Predicate) []string {
	keys := ds.Eligible(r.cfg.BillTypes, pred)
	if r.cfg.Limit > 0 && len(keys) > r.cfg.Limit {
		keys = keys[:r.cfg.Limit]
	}
	return keys
}

func (r *Runner) enrich(
	ctx context.Context,
	ds bill.Dataset,
	name Name,
	pred bill.Predicate,
	fetch enricher,
) (Summary, error) {
	if len(ds) == 0 {
		return Summary{Phase: name}, ErrEmptyStore
	}
	keys := r.selectKeys(ds, pred)
	rn, err := r.begin(name, len(keys))
	if err != nil {
		return Summary{Phase: name}, err
	}
	workers := min(r.cfg.Workers, max(len(keys), 1))
	r.logger.Info("phase selected records",
		zap.Stringer("run_id", rn.summary.RunID),
		zap.String("phase", string(name)),
		zap.Int("eligible", len(keys)),
		zap.Int("workers", workers),
		zap.Strings("types", r.cfg.BillTypes),
	)
	if len(keys) == 0 {
		r.logger.Info("nothing to do", zap.String("phase", string(name)))
		return rn.finish(ctx, ds, false)
	}

	tasks := make([]task, len(keys))
	for i, key := range keys {
		tasks[i] = task{key: key, data: ds[key].CongressGovData}
	}

	work := func(ctx context.Context, t task) taskResult {
		start := time.Now()
		billType, number, ok := bill.SplitKey(t.key)
		if !ok {
			return taskResult{err: fmt.Errorf("malformed record key %q", t.key)}
		}
		data, err := fetch(ctx, strings.ToLower(billType), number, t.data)
		return taskResult{data: data, err: err, dur: time.Since(start)}
	}
	collect := func(t task, res taskResult) {
		if res.err != nil {
			r.logger.Debug("record failed",
				zap.String("phase", string(name)),
				zap.String("bill_id", t.key),
				zap.Bool("canceled", errors.Is(res.err, context.Canceled)),
				zap.Error(res.err),
			)
			rn.recordFailed(t.key, res.dur, res.err)
			return
		}
		ds[t.key] = r.schema.Merge(ds[t.key], res.data)
		rn.recordDone(t.key, res.dur)
	}

	dispatched := dispatcher.Run(ctx, workers, tasks, work, collect)
	rn.summary.Skipped = len(tasks) - dispatched
	rn.summary.Updated = rn.summary.Succeeded

	return rn.finish(ctx, ds, true)
}
