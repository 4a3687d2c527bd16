package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mybank/idalloc"
)

// sequenceAllocator hands out predetermined IDs, then fails with err.
type sequenceAllocator struct {
	mu  sync.Mutex
	ids []uint64
	err error
}

func (a *sequenceAllocator) NextID() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.ids) == 0 {
		if a.err != nil {
			return 0, a.err
		}
		return 0, errors.New("allocator drained")
	}
	id := a.ids[0]
	a.ids = a.ids[1:]
	return id, nil
}

type serviceFixture struct {
	svc   *Service
	store *Store
	cache *RedisPageCache
	redis *miniredis.Miniredis
	logs  *observer.ObservedLogs
}

// cached reports whether req is cached under the current generation.
func (f serviceFixture) cached(t *testing.T, req PageRequest) bool {
	t.Helper()
	gen, err := f.cache.Generation(context.Background())
	require.NoError(t, err)
	return f.redis.Exists(pageKey(gen, req))
}

func newServiceFixture(t *testing.T, alloc idalloc.Allocator) serviceFixture {
	t.Helper()

	store := newTestStore(t)
	mr, client := newTestRedis(t)
	core, logs := observer.New(zapcore.DebugLevel)

	cache := NewRedisPageCache(client, time.Minute)
	svc := NewService(alloc, store, cache, zap.New(core))
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	return serviceFixture{svc: svc, store: store, cache: cache, redis: mr, logs: logs}
}

func TestService_Create(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{ids: []uint64{4242}})

	req := validRequest()
	req.Status = StatusFailed // ignored on create
	txn, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, idalloc.ID(4242), txn.ID)
	assert.Equal(t, "4242", txn.TID)
	assert.Equal(t, StatusCompleted, txn.Status)
	assert.Equal(t, "100.50", txn.Amount)
	assert.Equal(t, "CNY", txn.Currency)

	stored, err := f.store.Get(context.Background(), 4242)
	require.NoError(t, err)
	assert.Equal(t, txn.TID, stored.TID)
	assert.True(t, txn.CreatedAt.Equal(stored.CreatedAt))

	assert.Equal(t, 1, f.logs.FilterMessage("transaction created").Len())
}

func TestService_CreateWithGenerator(t *testing.T) {
	clk := idalloc.NewManualClock(idalloc.Epoch + 5000)
	cfg := idalloc.DefaultConfig(3, 1)
	cfg.Clock = clk
	gen, err := idalloc.NewWithConfig(cfg)
	require.NoError(t, err)

	f := newServiceFixture(t, gen)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	assert.Less(t, uint64(first.ID), uint64(second.ID))
	p := second.ID.Components()
	assert.EqualValues(t, 3, p.WorkerID)
	assert.EqualValues(t, 1, p.DatacenterID)
	assert.EqualValues(t, 1, p.Sequence)

	// a backwards clock surfaces as a wrapped regression and stores nothing
	clk.Set(idalloc.Epoch + 4000)
	_, err = f.svc.Create(ctx, validRequest())
	require.Error(t, err)
	assert.True(t, idalloc.IsClockRegression(err))

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestService_CreateValidation(t *testing.T) {
	alloc := &sequenceAllocator{ids: []uint64{1}}
	f := newServiceFixture(t, alloc)

	req := validRequest()
	req.AccountNumber = "12"
	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, alloc.ids, 1, "no ID is consumed by an invalid request")
}

func TestService_CreateDuplicate(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{ids: []uint64{9, 9}})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, validRequest())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, f.logs.FilterMessage("duplicate transaction id").Len())
}

func TestService_CreateAllocationFailure(t *testing.T) {
	boom := errors.New("boom")
	f := newServiceFixture(t, &sequenceAllocator{err: boom})

	_, err := f.svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.logs.FilterMessage("id allocation failed").Len())
}

func TestService_UpdateDeleteGet(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{ids: []uint64{77}})
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Amount = "1"
	req.Status = StatusCancelled
	updated, err := f.svc.Update(ctx, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "1.00", updated.Amount)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	require.NotNil(t, updated.UpdatedAt)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = f.svc.Update(ctx, 78, req)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, created.ID), ErrNotFound)
	_, err = f.svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListReadThrough(t *testing.T) {
	ids := []uint64{1, 2, 3, 4, 5}
	f := newServiceFixture(t, &sequenceAllocator{ids: append([]uint64(nil), ids...)})
	ctx := context.Background()

	for range ids[:4] {
		_, err := f.svc.Create(ctx, validRequest())
		require.NoError(t, err)
	}

	req := PageRequest{Page: 2, Size: 3}
	page, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrevious)
	require.Len(t, page.Content, 1)
	assert.Equal(t, idalloc.ID(4), page.Content[0].ID)
	assert.True(t, f.cached(t, req), "page is cached after a miss")

	// a row written behind the service is invisible until a write invalidates
	require.NoError(t, f.store.Insert(ctx, sampleTransaction(100)))
	cached, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 4, cached.TotalElements)

	_, err = f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	assert.False(t, f.cached(t, req), "writes invalidate cached pages")

	fresh, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 6, fresh.TotalElements)
}

func TestService_ListDefaultsAndValidation(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{})

	page, err := f.svc.List(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Size)
	assert.Empty(t, page.Content)
	assert.Equal(t, 0, page.TotalPages)

	_, err = f.svc.List(context.Background(), PageRequest{Page: 1, Size: 500})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_ListHugePage(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{ids: []uint64{1, 2, 3}})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, validRequest())
		require.NoError(t, err)
	}

	overflow := PageRequest{Page: math.MaxInt/100 + 2, Size: 100}
	_, err := f.svc.List(ctx, overflow)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, f.cached(t, overflow), "rejected pages are not cached")

	last := PageRequest{Page: math.MaxInt/100 + 1, Size: 100}
	page, err := f.svc.List(ctx, last)
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.EqualValues(t, 3, page.TotalElements)
	assert.False(t, page.HasNext)
}

// writeDuringCount inserts through the service while a List is between its
// cache lookup and its store read.
type writeDuringCount struct {
	*Store
	once  sync.Once
	write func()
}

func (r *writeDuringCount) Count(ctx context.Context) (int64, error) {
	n, err := r.Store.Count(ctx)
	r.once.Do(r.write)
	return n, err
}

func TestService_ListConcurrentWriteNotCached(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{ids: []uint64{1, 2, 3, 4}})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, validRequest())
		require.NoError(t, err)
	}

	repo := &writeDuringCount{Store: f.store}
	svc := NewService(f.svc.alloc, repo, f.cache, zap.NewNop())
	repo.write = func() {
		_, err := svc.Create(ctx, validRequest())
		require.NoError(t, err)
	}

	req := PageRequest{Page: 1, Size: 10}
	stale, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stale.TotalElements, "count was read before the write")

	fresh, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 4, fresh.TotalElements, "a page read before a write is not served after it")
	assert.Len(t, fresh.Content, 4)
}

func TestService_CacheFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture(t, &sequenceAllocator{ids: []uint64{1}})
	ctx := context.Background()
	f.redis.Close()

	_, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	page, err := f.svc.List(ctx, PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalElements)

	assert.NotZero(t, f.logs.FilterMessage("page cache invalidation failed").Len())
	assert.NotZero(t, f.logs.FilterMessage("page cache generation read failed").Len())
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(&sequenceAllocator{}, newTestStore(t), nil, nil)
	assert.IsType(t, NopCache{}, svc.cache)
	assert.NotNil(t, svc.logger)
}
