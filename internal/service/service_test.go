package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/config"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/domain/task"
	"catalog/repricer/internal/filter"
	"catalog/repricer/internal/pricing"
	"catalog/repricer/internal/queue"
	"catalog/repricer/internal/repository"
	"catalog/repricer/internal/state"
)

const testGroup = "test_group"

// --- Mock Repository ---

type mockResultRepository struct {
	mock.Mock
}

func (m *mockResultRepository) EnsureSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockResultRepository) SaveResults(ctx context.Context, batchID string, chunkIndex, rowOffset int, results []domain.PricingResult) error {
	args := m.Called(ctx, batchID, chunkIndex, rowOffset, results)
	return args.Error(0)
}

func (m *mockResultRepository) CategoryCounts(ctx context.Context, batchID string) (map[string]int, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *mockResultRepository) BatchStats(ctx context.Context, batchID string) (repository.Stats, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(repository.Stats), args.Error(1)
}

// --- Helpers ---

type fixture struct {
	svc    *Service
	repo   *mockResultRepository
	queue  *queue.RedisQueue
	state  state.StateManager
	client *redis.Client
}

func testPricing() *pricing.Config {
	return &pricing.Config{
		Columns: domain.ColumnMappings{
			StockCodeColumn: "KOD",
			CategoryColumn:  "KAT",
			BuyPriceColumn:  "ALIS",
		},
		BasePriceSource: domain.BuyPriceSource,
		Delimiters:      category.ExtractionDelimiters,
		Discounts:       pricing.DiscountTable{Default: 20},
		Segments:        []pricing.Segment{{Min: 0, Max: 10000, Kind: pricing.FixedAmount, Value: 50}},
		Rounding:        pricing.RoundingConfig{Mode: pricing.Ceiling, Step: 10, EndsWith99: true},
		Limits:          pricing.Limits{MaxDiscountedPrice: 100000},
	}
}

func testRows(n int) []domain.Row {
	rows := make([]domain.Row, n)
	for i := range rows {
		rows[i] = domain.Row{"KOD": i, "KAT": "Giyim > Alt Giyim", "ALIS": 100.0}
	}
	return rows
}

func newFixture(t *testing.T, chunkSize int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q, err := queue.NewRedisQueue(context.Background(), client, config.RedisConfig{ConsumerGroup: testGroup})
	require.NoError(t, err)
	q.SetBlock(20 * time.Millisecond)

	repo := &mockResultRepository{}
	st := state.NewRedisStateManager(client)

	return &fixture{
		svc:    NewService(repo, q, st, testPricing(), chunkSize, testGroup, 1),
		repo:   repo,
		queue:  q,
		state:  st,
		client: client,
	}
}

func (f *fixture) next(t *testing.T, taskType string) *redis.XMessage {
	t.Helper()
	msg, err := f.queue.GetTask(context.Background(), testGroup, "tester", queue.StreamName(taskType))
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

// --- Tests ---

func TestService_Calculate(t *testing.T) {
	f := newFixture(t, 10)

	results := f.svc.Calculate([]domain.Row{
		{"KOD": "A", "ALIS": 100.0},
		{"KOD": "B", "ALIS": "abc"},
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].Failed())
	assert.InDelta(t, 149.99, results[0].FinalDiscountedPrice, 1e-9)
	assert.Equal(t, domain.InvalidBasePrice, results[1].Failure)
}

func TestService_Preview(t *testing.T) {
	f := newFixture(t, 10)

	report := f.svc.Preview(testRows(3), filter.Options{Branch: "Giyim"})

	assert.Len(t, report.Rows, 3)
	assert.Equal(t, 3, report.Changed)
}

func TestService_Enqueue(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	batchID, chunks, err := f.svc.Enqueue(ctx, "", testRows(5))
	require.NoError(t, err)
	assert.NotEmpty(t, batchID)
	assert.Equal(t, 3, chunks)

	progress, err := f.state.GetProgress(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, state.Progress{Done: 0, Total: 3}, progress)

	var offsets, sizes []int
	for i := 0; i < chunks; i++ {
		msg := f.next(t, task.RowChunkType)
		chunk, err := task.UnmarshalTask[*task.RowChunkTask]([]byte(msg.Values["task_data"].(string)))
		require.NoError(t, err)
		assert.Equal(t, batchID, chunk.BatchID)
		assert.Equal(t, i, chunk.ChunkIndex)
		offsets = append(offsets, chunk.RowOffset)
		sizes = append(sizes, len(chunk.Rows))
	}
	assert.Equal(t, []int{0, 2, 4}, offsets)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestService_EnqueueKeepsBatchID(t *testing.T) {
	f := newFixture(t, 10)

	batchID, chunks, err := f.svc.Enqueue(context.Background(), "batch-1", testRows(1))
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batchID)
	assert.Equal(t, 1, chunks)
}

func TestService_EnqueueEmpty(t *testing.T) {
	f := newFixture(t, 10)

	_, _, err := f.svc.Enqueue(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestService_ProcessChunk(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.repo.On("SaveResults", mock.Anything, "b1", 0, 0, mock.MatchedBy(func(results []domain.PricingResult) bool {
		return len(results) == 2 && !results[0].Failed()
	})).Return(nil).Once()

	batchID, _, err := f.svc.Enqueue(ctx, "b1", testRows(2))
	require.NoError(t, err)

	msg := f.next(t, task.RowChunkType)
	require.NoError(t, f.svc.processMessage(ctx, msg))

	progress, err := f.state.GetProgress(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, progress.Complete())

	pending, err := f.client.XPending(ctx, queue.StreamName(task.RowChunkType), testGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "message acked")
	f.repo.AssertExpectations(t)
}

func TestService_ProcessChunkFailureGoesToRetry(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.repo.On("SaveResults", mock.Anything, "b1", 0, 0, mock.Anything).Return(errors.New("db down")).Once()

	_, _, err := f.svc.Enqueue(ctx, "b1", testRows(1))
	require.NoError(t, err)
	require.NoError(t, f.svc.processMessage(ctx, f.next(t, task.RowChunkType)))

	msg := f.next(t, task.RowChunkRetryType)
	retry, err := task.UnmarshalTask[*task.RowChunkRetryTask]([]byte(msg.Values["task_data"].(string)))
	require.NoError(t, err)
	assert.Equal(t, 0, retry.RetryCount)
	assert.Equal(t, "db down", retry.Error)
	assert.Len(t, retry.Rows, 1)

	progress, err := f.state.GetProgress(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, progress.Done)

	// The retry succeeds on the next attempt.
	f.repo.On("SaveResults", mock.Anything, "b1", 0, 0, mock.Anything).Return(nil).Once()
	require.NoError(t, f.svc.processMessage(ctx, msg))

	progress, err = f.state.GetProgress(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, progress.Complete())
	f.repo.AssertExpectations(t)
}

func TestService_RetryChunkRequeuesWithCount(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.repo.On("SaveResults", mock.Anything, "b1", 3, 30, mock.Anything).Return(errors.New("still down")).Once()

	err := f.svc.retryChunk(ctx, &task.RowChunkRetryTask{
		BatchID:    "b1",
		ChunkIndex: 3,
		RowOffset:  30,
		Rows:       testRows(1),
		RetryCount: 2,
	})
	require.NoError(t, err)

	msg := f.next(t, task.RowChunkRetryType)
	retry, err := task.UnmarshalTask[*task.RowChunkRetryTask]([]byte(msg.Values["task_data"].(string)))
	require.NoError(t, err)
	assert.Equal(t, 3, retry.RetryCount)
	assert.Equal(t, "still down", retry.Error)
}

func TestService_ProcessMessageInvalid(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	err := f.svc.processMessage(ctx, &redis.XMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	err = f.svc.processMessage(ctx, &redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"task_type": "unknown",
		"task_data": "{}",
	}})
	assert.ErrorContains(t, err, "unknown task type")
}

func TestService_Status(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.state.SetChunkTotal(ctx, "b1", 4))
	_, err := f.state.MarkChunkDone(ctx, "b1", 1)
	require.NoError(t, err)
	f.repo.On("BatchStats", mock.Anything, "b1").Return(repository.Stats{Total: 10, Priced: 9, Failed: 1, Changed: 8}, nil)

	status, err := f.svc.Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, state.Progress{Done: 1, Total: 4}, status.Progress)
	assert.Equal(t, 9, status.Stats.Priced)
}

func TestService_CategoryTreeRestoresSelection(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(map[string]int{
		"Giyim > Alt Giyim": 3,
		"Giyim > Üst Giyim": 2,
		"Aksesuar":          1,
	}, nil)
	require.NoError(t, f.state.SetSelection(ctx, []string{"Giyim > Alt Giyim", "Gone"}))

	sel, err := f.svc.CategoryTree(ctx, "b1")
	require.NoError(t, err)

	giyim, ok := sel.Tree().Lookup("Giyim")
	require.True(t, ok)
	assert.Equal(t, 5, giyim.Count)
	assert.Equal(t, category.Partial, sel.State("Giyim"))
	assert.Equal(t, []string{"Giyim > Alt Giyim"}, sel.Selected())
}

func TestService_CategoryTreeError(t *testing.T) {
	f := newFixture(t, 10)
	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(nil, errors.New("boom"))

	_, err := f.svc.CategoryTree(context.Background(), "b1")
	assert.Error(t, err)
}

func giyimCounts() map[string]int {
	return map[string]int{"Giyim": 1, "Giyim > Alt Giyim": 1}
}

func TestService_ReplaceSelectionStoresDerivedParent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(giyimCounts(), nil)

	sel, err := f.svc.ReplaceSelection(ctx, "b1", []string{"Giyim>Alt Giyim", "Giyim > Alt Giyim", " ", "Gone"})
	require.NoError(t, err)
	assert.Equal(t, category.Checked, sel.State("Giyim"))

	stored, err := f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim", "Giyim > Alt Giyim"}, stored)
}

func TestService_CheckCategory(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(map[string]int{
		"Giyim > Alt Giyim": 2,
		"Giyim > Üst Giyim": 1,
	}, nil)

	sel, err := f.svc.CheckCategory(ctx, "b1", "Giyim>Alt Giyim", true)
	require.NoError(t, err)
	assert.Equal(t, category.Partial, sel.State("Giyim"))
	stored, err := f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim > Alt Giyim"}, stored)

	_, err = f.svc.CheckCategory(ctx, "b1", "Giyim > Üst Giyim", true)
	require.NoError(t, err)
	stored, err = f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim", "Giyim > Alt Giyim", "Giyim > Üst Giyim"}, stored)

	_, err = f.svc.CheckCategory(ctx, "b1", "Giyim", false)
	require.NoError(t, err)
	stored, err = f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_SelectAllAndClear(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(giyimCounts(), nil)

	_, err := f.svc.SelectAllCategories(ctx, "b1")
	require.NoError(t, err)
	stored, err := f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim", "Giyim > Alt Giyim"}, stored)

	sel, err := f.svc.ClearSelection(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, sel.Selected())
	stored, err = f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_ClearSelectionDropsStalePaths(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(giyimCounts(), nil)
	require.NoError(t, f.state.SetSelection(ctx, []string{"Gone"}))

	_, err := f.svc.ClearSelection(ctx, "b1")
	require.NoError(t, err)

	stored, err := f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_SelectionErrors(t *testing.T) {
	f := newFixture(t, 10)
	f.repo.On("CategoryCounts", mock.Anything, "b1").Return(nil, errors.New("boom"))

	_, err := f.svc.CheckCategory(context.Background(), "b1", "Giyim", true)
	assert.Error(t, err)
}

// The export must keep exactly the rows the category tree shows as checked.
func TestService_ExportUsesTreeSelection(t *testing.T) {
	ctx := context.Background()
	rows := []domain.Row{
		{"KOD": "P1", "KAT": "Giyim", "ALIS": 100.0},
		{"KOD": "P2", "KAT": "Giyim > Alt Giyim", "ALIS": 100.0},
		{"KOD": "P3", "KAT": "Giyim > Üst Giyim", "ALIS": 100.0},
	}
	counts := map[string]int{"Giyim": 1, "Giyim > Alt Giyim": 1, "Giyim > Üst Giyim": 1}

	tests := []struct {
		name     string
		check    []string
		selected []string
		exported []string
	}{
		{
			name:     "partial child",
			check:    []string{"Giyim > Alt Giyim"},
			selected: []string{"Giyim > Alt Giyim"},
			exported: []string{"P2"},
		},
		{
			name:     "all children",
			check:    []string{"Giyim > Alt Giyim", "Giyim > Üst Giyim"},
			selected: []string{"Giyim", "Giyim > Alt Giyim", "Giyim > Üst Giyim"},
			exported: []string{"P1", "P2", "P3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.repo.On("CategoryCounts", mock.Anything, "b1").Return(counts, nil)

			for _, path := range tt.check {
				_, err := f.svc.CheckCategory(ctx, "b1", path, true)
				require.NoError(t, err)
			}

			tree, err := f.svc.CategoryTree(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, tt.selected, tree.Selected())

			stored, err := f.svc.Selection(ctx)
			require.NoError(t, err)
			assert.Equal(t, tree.Selected(), stored)

			selected, err := f.svc.ExportSelection(ctx, rows)
			require.NoError(t, err)
			assert.Equal(t, tree.Selected(), selected)

			sink := &recordingSink{}
			exp := NewExporter(exportSettings(), sink, "")
			summary, err := exp.Run(ctx, "b1", &domain.Sheet{Headers: []string{"KOD", "KAT", "ALIS"}, Rows: rows}, selected, nil)
			require.NoError(t, err)
			assert.Equal(t, len(tt.exported), summary.Stats.Exported)

			var codes []string
			for _, part := range sink.parts {
				for _, row := range part.Rows {
					codes = append(codes, row.Text("KOD"))
				}
			}
			assert.Equal(t, tt.exported, codes)
		})
	}
}

func TestService_ExportSelectionRestoresOntoRows(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	// Stored before the parent was derived: the rows' tree adds it back.
	require.NoError(t, f.state.SetSelection(ctx, []string{"Giyim > Alt Giyim"}))
	selected, err := f.svc.ExportSelection(ctx, []domain.Row{
		{"KAT": "Giyim", "ALIS": 100.0},
		{"KAT": "Giyim>Alt Giyim", "ALIS": 100.0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim", "Giyim > Alt Giyim"}, selected)

	// Nothing of the selection occurs in the rows: it still excludes them.
	require.NoError(t, f.state.SetSelection(ctx, []string{"Aksesuar"}))
	selected, err = f.svc.ExportSelection(ctx, testRows(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Aksesuar"}, selected)

	require.NoError(t, f.state.SetSelection(ctx, nil))
	selected, err = f.svc.ExportSelection(ctx, testRows(2))
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestService_SeedSelection(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.svc.SeedSelection(ctx, []string{"Giyim>Alt Giyim", "Giyim > Alt Giyim", " "}))
	stored, err := f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim > Alt Giyim"}, stored)

	// A stored selection wins over the settings file.
	require.NoError(t, f.svc.SeedSelection(ctx, []string{"Aksesuar"}))
	stored, err = f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Giyim > Alt Giyim"}, stored)
}

func TestService_SeedSelectionEmpty(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.svc.SeedSelection(ctx, []string{"", " > "}))
	stored, err := f.svc.Selection(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestService_RunWorkers(t *testing.T) {
	f := newFixture(t, 2)

	var mu sync.Mutex
	saved := 0
	f.repo.On("SaveResults", mock.Anything, "b1", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			saved += len(args.Get(4).([]domain.PricingResult))
			mu.Unlock()
		}).
		Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, chunks, err := f.svc.Enqueue(ctx, "b1", testRows(7))
	require.NoError(t, err)
	require.Equal(t, 4, chunks)

	done := make(chan error, 1)
	go func() { done <- f.svc.RunWorkers(ctx, 2) }()

	require.Eventually(t, func() bool {
		p, err := f.state.GetProgress(context.Background(), "b1")
		return err == nil && p.Complete()
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}

	mu.Lock()
	assert.Equal(t, 7, saved)
	mu.Unlock()
}

// failingQueue fails every read and counts the attempts.
type failingQueue struct {
	queue.Queue
	reads atomic.Int64
}

func (q *failingQueue) GetTask(context.Context, string, string, string) (*redis.XMessage, error) {
	q.reads.Add(1)
	return nil, errors.New("connection refused")
}

func (q *failingQueue) AutoClaim(context.Context, string, string, string, time.Duration) ([]redis.XMessage, error) {
	return nil, nil
}

func TestService_WorkerBacksOffOnReadError(t *testing.T) {
	q := &failingQueue{}
	svc := NewService(&mockResultRepository{}, q, nil, testPricing(), 10, testGroup, 60)
	svc.SetErrorBackoff(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.RunWorkers(ctx, 1))

	// One main and one retry worker, each reading about four times.
	assert.LessOrEqual(t, q.reads.Load(), int64(12))
	assert.GreaterOrEqual(t, q.reads.Load(), int64(2))
}
