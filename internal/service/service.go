package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/domain/task"
	"catalog/repricer/internal/filter"
	"catalog/repricer/internal/metrics"
	"catalog/repricer/internal/pricing"
	"catalog/repricer/internal/queue"
	"catalog/repricer/internal/repository"
	"catalog/repricer/internal/state"
)

// ErrEmptyBatch is returned when a batch without rows is enqueued.
var ErrEmptyBatch = errors.New("batch has no rows")

type Service struct {
	repository   repository.ResultRepository
	queue        queue.Queue
	stateManager state.StateManager
	pricing      *pricing.Config
	chunkSize    int
	groupName    string
	minIdleTime  time.Duration
	errBackoff   time.Duration
}

func NewService(
	repository repository.ResultRepository,
	queue queue.Queue,
	stateManager state.StateManager,
	pricingConfig *pricing.Config,
	chunkSize int,
	groupName string,
	minIdleTime int,
) *Service {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Service{
		repository:   repository,
		queue:        queue,
		stateManager: stateManager,
		pricing:      pricingConfig,
		chunkSize:    chunkSize,
		groupName:    groupName,
		minIdleTime:  time.Duration(minIdleTime) * time.Second,
		errBackoff:   time.Second,
	}
}

// SetErrorBackoff sets how long a worker waits after a failed read from its
// stream.
func (s *Service) SetErrorBackoff(d time.Duration) {
	s.errBackoff = d
}

// Calculate prices rows without storing anything.
func (s *Service) Calculate(rows []domain.Row) []domain.PricingResult {
	results := make([]domain.PricingResult, len(rows))
	for i, row := range rows {
		results[i] = pricing.CalculateRow(row, s.pricing)
	}
	return results
}

// Preview prices rows and applies the preview filters.
func (s *Service) Preview(rows []domain.Row, opts filter.Options) filter.PreviewReport {
	return filter.Preview(rows, s.pricing, opts)
}

// Enqueue splits rows into chunks and publishes them for the workers. An
// empty batchID gets a generated one.
func (s *Service) Enqueue(ctx context.Context, batchID string, rows []domain.Row) (string, int, error) {
	if len(rows) == 0 {
		return "", 0, ErrEmptyBatch
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}

	chunks := (len(rows) + s.chunkSize - 1) / s.chunkSize
	if err := s.stateManager.SetChunkTotal(ctx, batchID, chunks); err != nil {
		return "", 0, err
	}

	for i := 0; i < chunks; i++ {
		start := i * s.chunkSize
		end := min(start+s.chunkSize, len(rows))

		_, err := s.queue.AddTask(ctx, &task.RowChunkTask{
			BatchID:    batchID,
			ChunkIndex: i,
			RowOffset:  start,
			Rows:       rows[start:end],
		})
		if err != nil {
			log.Errorf("❌ Failed to add chunk %d of batch %s: %v", i, batchID, err)
			return "", 0, err
		}
	}

	log.Infof("📦 Enqueued batch %s: %d rows in %d chunks", batchID, len(rows), chunks)
	return batchID, chunks, nil
}

// BatchStatus combines chunk progress with the stored result statistics.
type BatchStatus struct {
	BatchID  string           `json:"batch_id"`
	Progress state.Progress   `json:"progress"`
	Stats    repository.Stats `json:"stats"`
}

func (s *Service) Status(ctx context.Context, batchID string) (*BatchStatus, error) {
	progress, err := s.stateManager.GetProgress(ctx, batchID)
	if err != nil {
		return nil, err
	}
	stats, err := s.repository.BatchStats(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchStatus{BatchID: batchID, Progress: progress, Stats: stats}, nil
}

// CategoryTree rebuilds the category tree of a batch from its stored counts
// and restores the persisted selection onto it.
func (s *Service) CategoryTree(ctx context.Context, batchID string) (*category.Selection, error) {
	sel, _, err := s.loadSelection(ctx, batchID)
	return sel, err
}

func (s *Service) loadSelection(ctx context.Context, batchID string) (*category.Selection, []string, error) {
	counts, err := s.repository.CategoryCounts(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.stateManager.GetSelection(ctx)
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, 0, len(counts))
	for path := range counts {
		paths = append(paths, path)
	}
	tree := category.Build(paths)
	tree.ApplyCounts(counts)

	sel := category.NewSelection(nil)
	sel.Restore(stored, tree)
	return sel, stored, nil
}

func (s *Service) Selection(ctx context.Context) ([]string, error) {
	return s.stateManager.GetSelection(ctx)
}

// updateSelection runs op on the batch tree and persists the checked set
// whenever op changes it. A stored set that no longer matches the tree is
// rewritten too, so parents derived by the tree are never missing from it.
func (s *Service) updateSelection(ctx context.Context, batchID string, op func(*category.Selection)) (*category.Selection, error) {
	sel, stored, err := s.loadSelection(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var (
		saved   bool
		saveErr error
	)
	sel.OnChange(func(selected []string) {
		saved = true
		saveErr = s.stateManager.SetSelection(ctx, selected)
	})

	op(sel)

	if !saved && !slices.Equal(stored, sel.Selected()) {
		saveErr = s.stateManager.SetSelection(ctx, sel.Selected())
	}
	if saveErr != nil {
		return nil, saveErr
	}
	return sel, nil
}

// ReplaceSelection makes paths the checked set of the batch tree. Paths the
// tree does not know are dropped and fully checked parents are added.
func (s *Service) ReplaceSelection(ctx context.Context, batchID string, paths []string) (*category.Selection, error) {
	normalized := normalizePaths(paths)
	sel, err := s.updateSelection(ctx, batchID, func(sel *category.Selection) {
		sel.Replace(normalized)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("☑️ Category selection replaced: %d paths", len(sel.Selected()))
	return sel, nil
}

// CheckCategory checks or unchecks one node of the batch tree with its
// whole subtree.
func (s *Service) CheckCategory(ctx context.Context, batchID, path string, checked bool) (*category.Selection, error) {
	path = category.Normalize(path)
	return s.updateSelection(ctx, batchID, func(sel *category.Selection) {
		sel.SetChecked(path, checked)
	})
}

func (s *Service) SelectAllCategories(ctx context.Context, batchID string) (*category.Selection, error) {
	return s.updateSelection(ctx, batchID, func(sel *category.Selection) {
		sel.SelectAll()
	})
}

func (s *Service) ClearSelection(ctx context.Context, batchID string) (*category.Selection, error) {
	return s.updateSelection(ctx, batchID, func(sel *category.Selection) {
		sel.ClearAll()
	})
}

// ExportSelection restores the stored selection onto the tree of the rows
// about to be exported and returns its checked set. When none of the stored
// paths occur in the rows the stored set is returned as is, so the export
// keeps excluding them instead of falling back to every row.
func (s *Service) ExportSelection(ctx context.Context, rows []domain.Row) ([]string, error) {
	stored, err := s.stateManager.GetSelection(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return stored, nil
	}

	results := s.Calculate(rows)
	paths := make([]string, 0, len(results))
	for i := range results {
		paths = append(paths, results[i].CategoryPath())
	}

	sel := category.NewSelection(nil)
	sel.Restore(stored, category.Build(paths))
	selected := sel.Selected()
	if len(selected) == 0 {
		return stored, nil
	}
	return selected, nil
}

// SeedSelection stores paths as the selection when nothing is stored yet.
func (s *Service) SeedSelection(ctx context.Context, paths []string) error {
	normalized := normalizePaths(paths)
	if len(normalized) == 0 {
		return nil
	}
	current, err := s.stateManager.GetSelection(ctx)
	if err != nil {
		return err
	}
	if len(current) > 0 {
		return nil
	}
	log.Infof("☑️ Seeding category selection with %d paths from settings", len(normalized))
	return s.stateManager.SetSelection(ctx, normalized)
}

// normalizePaths canonicalizes paths, dropping empty ones and duplicates.
func normalizePaths(paths []string) []string {
	normalized := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		n := category.Normalize(p)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}
	return normalized
}

func (s *Service) RunWorkers(ctx context.Context, numWorkers int) error {
	var wg sync.WaitGroup

	// Run workers for both regular and retry tasks
	s.runWorkersForStream(ctx, &wg, numWorkers, queue.StreamName(task.RowChunkType), "main")
	s.runWorkersForStream(ctx, &wg, max(1, numWorkers/2), queue.StreamName(task.RowChunkRetryType), "retry")

	wg.Wait()
	return nil
}

func (s *Service) runWorkersForStream(ctx context.Context, wg *sync.WaitGroup, numWorkers int, streamName, workerType string) {
	// Auto-claimer for this stream
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.minIdleTime)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				consumer := fmt.Sprintf("autoclaimer-%s-%d", workerType, time.Now().UnixNano())
				claimedMessages, err := s.queue.AutoClaim(ctx, s.groupName, consumer, streamName, s.minIdleTime)
				if err != nil {
					log.Errorf("❌ Failed to auto-claim messages for %s: %v", streamName, err)
					continue
				}
				if len(claimedMessages) > 0 {
					log.Infof("🔄 Auto-claimed %d messages from %s stream", len(claimedMessages), workerType)
					for _, msg := range claimedMessages {
						if err := s.processMessage(ctx, &msg); err != nil {
							log.Errorf("❌ Failed to process auto-claimed message %s: %v", msg.ID, err)
						}
					}
				}
			}
		}
	}()

	// Regular workers for this stream
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			consumer := fmt.Sprintf("%s-worker-%d", workerType, workerID)
			log.Infof("🚀 Starting %s worker %d as consumer %s", workerType, workerID, consumer)
			for {
				select {
				case <-ctx.Done():
					log.Infof("🛑 %s worker %d stopping", workerType, workerID)
					return
				default:
					msg, err := s.queue.GetTask(ctx, s.groupName, consumer, streamName)
					if err != nil {
						if ctx.Err() != nil {
							continue
						}
						log.Errorf("❌ Failed to get task from %s: %v", streamName, err)
						select {
						case <-ctx.Done():
						case <-time.After(s.errBackoff):
						}
						continue
					}

					if msg != nil {
						if err := s.processMessage(ctx, msg); err != nil {
							log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
						}
					}
				}
			}
		}(i + 1)
	}
}

func (s *Service) processMessage(ctx context.Context, msg *redis.XMessage) error {
	taskType, ok := msg.Values["task_type"].(string)
	if !ok {
		return fmt.Errorf("invalid task type in message %s", msg.ID)
	}

	taskData, ok := msg.Values["task_data"].(string)
	if !ok {
		return fmt.Errorf("invalid task data in message %s", msg.ID)
	}

	switch taskType {
	case task.RowChunkType:
		chunk, err := task.UnmarshalTask[*task.RowChunkTask]([]byte(taskData))
		if err != nil {
			return fmt.Errorf("failed to unmarshal row chunk task data: %w", err)
		}

		if err := s.priceChunk(ctx, chunk); err != nil {
			// Add to retry queue instead of failing completely
			retryTask := &task.RowChunkRetryTask{
				BatchID:    chunk.BatchID,
				ChunkIndex: chunk.ChunkIndex,
				RowOffset:  chunk.RowOffset,
				Rows:       chunk.Rows,
				RetryCount: 0,
				Error:      err.Error(),
			}

			if _, addErr := s.queue.AddTask(ctx, retryTask); addErr != nil {
				return fmt.Errorf("failed to add retry task for chunk %d: %w", chunk.ChunkIndex, addErr)
			}
			log.Warnf("🔄 Added chunk %d of batch %s to retry queue due to error: %v", chunk.ChunkIndex, chunk.BatchID, err)
		}

	case task.RowChunkRetryType:
		retryTask, err := task.UnmarshalTask[*task.RowChunkRetryTask]([]byte(taskData))
		if err != nil {
			return fmt.Errorf("failed to unmarshal retry task data: %w", err)
		}

		if err := s.retryChunk(ctx, retryTask); err != nil {
			return fmt.Errorf("failed to retry chunk: %w", err)
		}

	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}

	if err := s.queue.AckTask(ctx, queue.StreamName(taskType), s.groupName, msg.ID); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}

	return nil
}

// priceChunk prices every row of the chunk, stores the results and marks the
// chunk done.
func (s *Service) priceChunk(ctx context.Context, chunk *task.RowChunkTask) error {
	start := time.Now()
	defer func() {
		metrics.ChunkDuration.WithLabelValues(task.RowChunkType).Observe(time.Since(start).Seconds())
	}()

	results := s.Calculate(chunk.Rows)

	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		}
	}

	if err := s.repository.SaveResults(ctx, chunk.BatchID, chunk.ChunkIndex, chunk.RowOffset, results); err != nil {
		metrics.ChunksProcessed.WithLabelValues(task.RowChunkType, "error").Inc()
		return err
	}

	metrics.RowsPriced.WithLabelValues(metrics.OutcomePriced).Add(float64(len(results) - failed))
	metrics.RowsPriced.WithLabelValues(metrics.OutcomeFailed).Add(float64(failed))
	metrics.ChunksProcessed.WithLabelValues(task.RowChunkType, "ok").Inc()

	progress, err := s.stateManager.MarkChunkDone(ctx, chunk.BatchID, chunk.ChunkIndex)
	if err != nil {
		return err
	}

	log.Debugf("✅ Chunk %d of batch %s priced: %d rows, %d failed", chunk.ChunkIndex, chunk.BatchID, len(results), failed)
	if progress.Complete() {
		log.Infof("🎉 Batch %s complete: %d chunks", chunk.BatchID, progress.Total)
	}
	return nil
}

func (s *Service) retryChunk(ctx context.Context, retryTask *task.RowChunkRetryTask) error {
	// Increment retry count
	retryTask.RetryCount++

	log.Infof("🔄 Retrying chunk %d of batch %s (attempt %d)",
		retryTask.ChunkIndex, retryTask.BatchID, retryTask.RetryCount)

	err := s.priceChunk(ctx, &task.RowChunkTask{
		BatchID:    retryTask.BatchID,
		ChunkIndex: retryTask.ChunkIndex,
		RowOffset:  retryTask.RowOffset,
		Rows:       retryTask.Rows,
	})
	if err != nil {
		// Create new retry task with incremented count - retry indefinitely
		newRetryTask := &task.RowChunkRetryTask{
			BatchID:    retryTask.BatchID,
			ChunkIndex: retryTask.ChunkIndex,
			RowOffset:  retryTask.RowOffset,
			Rows:       retryTask.Rows,
			RetryCount: retryTask.RetryCount,
			Error:      err.Error(),
		}

		if _, addErr := s.queue.AddTask(ctx, newRetryTask); addErr != nil {
			log.Errorf("❌ Failed to re-add retry task for chunk %d: %v", retryTask.ChunkIndex, addErr)
			return addErr
		}

		log.Warnf("🔄 Chunk %d of batch %s failed again, will retry (attempt %d): %v",
			retryTask.ChunkIndex, retryTask.BatchID, retryTask.RetryCount, err)
		return nil
	}

	log.Infof("✅ Successfully recovered chunk %d of batch %s after %d attempts",
		retryTask.ChunkIndex, retryTask.BatchID, retryTask.RetryCount)
	return nil
}
