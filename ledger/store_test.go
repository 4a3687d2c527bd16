package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mybank/idalloc"
)

// newTestStore returns a migrated Store on a private in-memory SQLite database.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db, DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func sampleTransaction(id idalloc.ID) *Transaction {
	return &Transaction{
		ID:              id,
		TID:             id.String(),
		AccountNumber:   "6222020200112233",
		TransactionType: TypePayment,
		Amount:          "12.30",
		Currency:        "CNY",
		Description:     "coffee",
		Category:        "FOOD",
		Status:          StatusCompleted,
		CreatedAt:       time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
	}
}

func TestStore_InsertGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleTransaction(idalloc.ID(1 << 40))
	require.NoError(t, store.Insert(ctx, want))

	got, err := store.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.TID, got.TID)
	assert.Equal(t, want.Amount, got.Amount)
	assert.Equal(t, want.Category, got.Category)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, want.CreatedAt)
	assert.Nil(t, got.UpdatedAt)
}

func TestStore_InsertDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleTransaction(7)))
	err := store.Insert(ctx, sampleTransaction(7))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.EqualValues(t, 404, nf.ID)
}

func TestStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	orig := sampleTransaction(99)
	require.NoError(t, store.Insert(ctx, orig))

	updated := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	change := *orig
	change.Amount = "50.00"
	change.Status = StatusCancelled
	change.UpdatedAt = &updated
	change.CreatedAt = time.Time{}
	require.NoError(t, store.Update(ctx, &change))

	got, err := store.Get(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "50.00", got.Amount)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, updated.Equal(*got.UpdatedAt))
	assert.True(t, orig.CreatedAt.Equal(got.CreatedAt), "created_at is not rewritten")

	missing := sampleTransaction(100)
	assert.ErrorIs(t, store.Update(ctx, missing), ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleTransaction(5)))
	require.NoError(t, store.Delete(ctx, 5))
	assert.ErrorIs(t, store.Delete(ctx, 5), ErrNotFound)

	_, err := store.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// inserted out of order; List orders by id
	for _, id := range []idalloc.ID{30, 10, 50, 20, 40} {
		require.NoError(t, store.Insert(ctx, sampleTransaction(id)))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	page, err := store.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, idalloc.ID(20), page[0].ID)
	assert.Equal(t, idalloc.ID(30), page[1].ID)

	tail, err := store.List(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, idalloc.ID(50), tail[0].ID)

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []idalloc.ID{10, 20, 30, 40, 50}, ids)
}

func TestStore_Rebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(&sql.DB{}, "mysql")
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}
