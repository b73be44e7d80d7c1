package service

import (
	"context"
	"fmt"
	"time"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/config"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/domain/task"
	"catalog/repricer/internal/filter"
	"catalog/repricer/internal/logger"
	"catalog/repricer/internal/metrics"
	"catalog/repricer/internal/pricing"
	"catalog/repricer/internal/queue"
)

// progressEvery is how many exported rows pass between Progress events.
const progressEvery = 100

// detailRows is how many leading rows get a detailed entry in the run log.
const detailRows = 5

type EventKind string

const (
	PartStarted   EventKind = "part_started"
	Progress      EventKind = "progress"
	PartCompleted EventKind = "part_completed"
	Done          EventKind = "done"
)

// Event reports export progress to the caller.
type Event struct {
	Kind EventKind `json:"kind"`
	Part int       `json:"part"`
	// PartRows is the number of rows in the current part so far.
	PartRows int `json:"part_rows"`
	// Exported is the number of rows exported so far in the whole run.
	Exported int    `json:"exported"`
	Message  string `json:"message,omitempty"`
}

// UpdateCounts tracks how many cells of each target column were rewritten.
type UpdateCounts struct {
	Discounted int `json:"discounted"`
	Sell       int `json:"sell"`
	Market     int `json:"market"`
}

func (u *UpdateCounts) add(o UpdateCounts) {
	u.Discounted += o.Discounted
	u.Sell += o.Sell
	u.Market += o.Market
}

// ApplyTargets returns a copy of row with the configured price columns
// replaced by the computed prices: discounted gets the final discounted price,
// sell and market get the label price. Failed rows and columns missing from
// the row are left untouched.
func ApplyTargets(row domain.Row, res *domain.PricingResult, m domain.ColumnMappings, t domain.Targets) (domain.Row, UpdateCounts) {
	out := row.Clone()
	var counts UpdateCounts
	if res.Failed() {
		return out, counts
	}

	set := func(enabled bool, column string, value float64) bool {
		if !enabled || column == "" {
			return false
		}
		if _, ok := out[column]; !ok {
			return false
		}
		out[column] = value
		return true
	}

	if set(t.UpdateDiscounted, m.DiscountedPriceColumn, res.FinalDiscountedPrice) {
		counts.Discounted++
	}
	if set(t.UpdateSell, m.SellPriceColumn, res.LabelPrice) {
		counts.Sell++
	}
	if set(t.UpdateMarket, m.MarketPriceColumn, res.LabelPrice) {
		counts.Market++
	}
	return out, counts
}

// Part is one output file worth of rewritten rows.
type Part struct {
	BatchID  string
	Number   int
	FileName string
	Headers  []string
	Rows     []domain.Row
}

// PartSink receives finished parts. Writing the spreadsheet is its job.
type PartSink interface {
	WritePart(ctx context.Context, part *Part) error
}

// QueueSink publishes parts to the export stream for the spreadsheet writer.
type QueueSink struct {
	Queue queue.Queue
}

func (s *QueueSink) WritePart(ctx context.Context, part *Part) error {
	_, err := s.Queue.AddTask(ctx, &task.ExportPartTask{
		BatchID:  part.BatchID,
		Part:     part.Number,
		FileName: part.FileName,
		Headers:  part.Headers,
		Rows:     part.Rows,
	})
	if err != nil {
		return fmt.Errorf("failed to publish part %d: %w", part.Number, err)
	}
	return nil
}

// ExportStats summarizes one export run.
type ExportStats struct {
	Total    int `json:"total"`
	Priced   int `json:"priced"`
	Failed   int `json:"failed"`
	Changed  int `json:"changed"`
	Exported int `json:"exported"`
}

type ExportSummary struct {
	BatchID        string         `json:"batch_id"`
	Parts          int            `json:"parts"`
	Stats          ExportStats    `json:"stats"`
	Updates        UpdateCounts   `json:"updates"`
	CategoryCounts map[string]int `json:"category_counts"`
	LogFile        string         `json:"log_file,omitempty"`
}

// Exporter rewrites a sheet with computed prices and splits it into parts.
type Exporter struct {
	settings *config.Settings
	pricing  *pricing.Config
	sink     PartSink
	logDir   string
	now      func() time.Time
}

func NewExporter(settings *config.Settings, sink PartSink, logDir string) *Exporter {
	return &Exporter{
		settings: settings,
		pricing:  settings.PricingConfig(),
		sink:     sink,
		logDir:   logDir,
		now:      time.Now,
	}
}

// Run prices the rows in order, drops rows rejected by the stock filter or
// outside the selected categories, and hands every max_rows_per_file rows to
// the sink as one part. Cancelling ctx stops the run between rows; parts
// already handed over stay with the sink.
func (e *Exporter) Run(ctx context.Context, batchID string, sheet *domain.Sheet, selected []string, progress func(Event)) (*ExportSummary, error) {
	if progress == nil {
		progress = func(Event) {}
	}

	runLog, err := logger.NewRunLog(e.logDir, batchID, e.now())
	if err != nil {
		return nil, err
	}
	defer runLog.Close()

	m := e.settings.Mappings
	targets := e.settings.Targets
	maxRows := e.settings.Output.MaxRowsPerFile
	if maxRows <= 0 {
		maxRows = 5000
	}

	runLog.Infof("export started: %d rows, %d headers", len(sheet.Rows), len(sheet.Headers))
	runLog.Infof("targets: %+v, base price source: %s", targets, e.settings.BasePriceSource)
	runLog.Infof("columns: discounted=%q sell=%q market=%q", m.DiscountedPriceColumn, m.SellPriceColumn, m.MarketPriceColumn)

	summary := &ExportSummary{BatchID: batchID, LogFile: runLog.Path}
	paths := make([]string, 0, len(sheet.Rows))

	var current *Part
	flush := func() error {
		if current == nil || len(current.Rows) == 0 {
			return nil
		}
		if err := e.sink.WritePart(ctx, current); err != nil {
			return err
		}
		metrics.RowsExported.Add(float64(len(current.Rows)))
		summary.Parts++
		progress(Event{Kind: PartCompleted, Part: current.Number, PartRows: len(current.Rows), Exported: summary.Stats.Exported})
		runLog.Infof("part %d completed with %d rows", current.Number, len(current.Rows))
		current = nil
		return nil
	}

	for i, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			runLog.Warnf("export cancelled after %d rows", i)
			return summary, err
		}

		res := pricing.CalculateRow(row, e.pricing)
		summary.Stats.Total++
		paths = append(paths, res.FullCategoryPath)
		if res.Failed() {
			summary.Stats.Failed++
		} else {
			summary.Stats.Priced++
			if res.Changed() {
				summary.Stats.Changed++
			}
		}

		out, updated := ApplyTargets(row, &res, m, targets)
		summary.Updates.add(updated)

		if i < detailRows {
			runLog.Debugf("row %d: final=%.2f label=%.2f failure=%q updates=%+v",
				i+1, res.FinalDiscountedPrice, res.LabelPrice, res.Failure, updated)
		}

		if !filter.InStock(row, m.StockColumn, m.IncludeZeroStock) {
			continue
		}
		if !filter.MatchesSelection(&res, selected) {
			continue
		}

		if current == nil {
			number := summary.Parts + 1
			current = &Part{
				BatchID:  batchID,
				Number:   number,
				FileName: e.settings.Output.FileName(number),
				Headers:  sheet.Headers,
				Rows:     make([]domain.Row, 0, min(maxRows, len(sheet.Rows)-i)),
			}
			progress(Event{Kind: PartStarted, Part: number, Exported: summary.Stats.Exported})
		}
		current.Rows = append(current.Rows, out)
		summary.Stats.Exported++

		if summary.Stats.Exported%progressEvery == 0 {
			progress(Event{Kind: Progress, Part: current.Number, PartRows: len(current.Rows), Exported: summary.Stats.Exported})
		}

		if len(current.Rows) >= maxRows {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}

	if err := flush(); err != nil {
		return summary, err
	}

	summary.CategoryCounts = category.CountPaths(paths, m.NoCategoryMode)

	msg := fmt.Sprintf("%d rows exported in %d parts", summary.Stats.Exported, summary.Parts)
	runLog.Infof("%s, updates: %+v", msg, summary.Updates)
	progress(Event{Kind: Done, Exported: summary.Stats.Exported, Message: msg})

	return summary, nil
}
