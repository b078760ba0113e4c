package phase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/parse"
)

// RunList paginates every configured bill type in order, creating or
// refreshing one record per listed bill, then saves the dataset once. A page
// failure stops that bill type only.
func (r *Runner) RunList(ctx context.Context, ds bill.Dataset) (Summary, error) {
	rn, err := r.begin(List, 0)
	if err != nil {
		return Summary{Phase: List}, err
	}
	r.logger.Info("list phase starting",
		zap.Stringer("run_id", rn.summary.RunID),
		zap.Strings("types", r.cfg.BillTypes),
		zap.Int("page_size", r.cfg.PageSize),
		zap.Int("records", len(ds)),
	)

	for _, billType := range r.cfg.BillTypes {
		if ctx.Err() != nil {
			break
		}
		if err := r.listType(ctx, rn, ds, strings.ToLower(billType)); err != nil {
			if ctx.Err() != nil {
				break
			}
			key := strings.ToUpper(billType)
			r.logger.Error("list pagination failed",
				zap.Stringer("run_id", rn.summary.RunID),
				zap.String("bill_type", key),
				zap.Error(err),
			)
			rn.recordFailed(key, 0, err)
		}
	}
	rn.summary.Eligible = rn.summary.Succeeded

	return rn.finish(ctx, ds, true)
}

func (r *Runner) listType(ctx context.Context, rn *run, ds bill.Dataset, billType string) error {
	for offset := 0; ; offset += r.cfg.PageSize {
		raw, err := r.source.ListBills(ctx, billType, r.cfg.PageSize, offset)
		if err != nil {
			return fmt.Errorf("fetch %s page at offset %d: %w", billType, offset, err)
		}
		page, err := parse.ListItems(raw)
		if err != nil {
			return fmt.Errorf("parse %s page at offset %d: %w", billType, offset, err)
		}
		rn.summary.Skipped += page.Skipped
		if len(page.Items) == 0 && page.Skipped == 0 {
			return nil
		}

		for _, item := range page.Items {
			key := bill.MakeKey(item.Type, item.Number)
			var existing *bill.CongressGovData
			if rec, ok := ds[key]; ok {
				existing = &rec.CongressGovData
			}
			data := r.builder.FromListItem(item, existing)
			if r.schema.Upsert(ds, data) {
				rn.summary.Created++
			} else {
				rn.summary.Updated++
			}
			rn.summary.Succeeded++
		}
		r.logger.Debug("list page merged",
			zap.String("bill_type", billType),
			zap.Int("offset", offset),
			zap.Int("items", len(page.Items)),
			zap.Int("skipped", page.Skipped),
		)

		if err := r.sleep(ctx, r.cfg.PageDelay); err != nil {
			return err
		}
	}
}
