package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mybank/idalloc"
)

// Repository is the persistence the Service needs. *Store implements it.
type Repository interface {
	Insert(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id idalloc.ID) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	Delete(ctx context.Context, id idalloc.ID) error
	List(ctx context.Context, offset, limit int) ([]Transaction, error)
	Count(ctx context.Context) (int64, error)
}

var _ Repository = (*Store)(nil)

// contextAllocator is satisfied by *idalloc.Generator; other allocators are
// called without a context.
type contextAllocator interface {
	NextIDContext(ctx context.Context) (uint64, error)
}

// Service implements transaction CRUD on top of an injected allocator.
type Service struct {
	alloc  idalloc.Allocator
	repo   Repository
	cache  PageCache
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a Service. A nil cache disables caching and a nil logger
// discards logs.
func NewService(alloc idalloc.Allocator, repo Repository, cache PageCache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		alloc:  alloc,
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) nextID(ctx context.Context) (idalloc.ID, error) {
	var (
		id  uint64
		err error
	)
	if ca, ok := s.alloc.(contextAllocator); ok {
		id, err = ca.NextIDContext(ctx)
	} else {
		id, err = s.alloc.NextID()
	}
	if err != nil {
		return 0, fmt.Errorf("allocate transaction id: %w", err)
	}
	return idalloc.ID(id), nil
}

// Create validates req, mints a new ID and stores a COMPLETED transaction.
//
// TID is the decimal form of the ID. A primary key collision is reported as
// ErrDuplicate; allocation errors such as idalloc.ErrClockRegression are
// returned wrapped.
func (s *Service) Create(ctx context.Context, req Request) (*Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx)
	if err != nil {
		s.logger.Error("id allocation failed", zap.Error(err))
		return nil, err
	}

	t := &Transaction{
		ID:              id,
		TID:             strconv.FormatUint(uint64(id), 10),
		AccountNumber:   req.AccountNumber,
		TransactionType: req.TransactionType,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		Category:        req.Category,
		Status:          StatusCompleted,
		CreatedAt:       s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.logger.Warn("duplicate transaction id", zap.Uint64("id", uint64(id)))
		}
		return nil, err
	}

	s.logger.Info("transaction created",
		zap.Uint64("id", uint64(id)),
		zap.String("type", t.TransactionType),
		zap.String("amount", t.Amount),
		zap.String("currency", t.Currency))
	s.invalidate(ctx)
	return t, nil
}

// Update replaces the mutable fields of transaction id, including status.
func (s *Service) Update(ctx context.Context, id idalloc.ID, req Request) (*Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	updated := s.now().UTC().Truncate(time.Microsecond)
	t := &Transaction{
		ID:              id,
		TID:             strconv.FormatUint(uint64(id), 10),
		AccountNumber:   req.AccountNumber,
		TransactionType: req.TransactionType,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		Category:        req.Category,
		Status:          req.Status,
		UpdatedAt:       &updated,
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("transaction updated", zap.Uint64("id", uint64(id)), zap.String("status", t.Status))
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

// Delete removes transaction id.
func (s *Service) Delete(ctx context.Context, id idalloc.ID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("transaction deleted", zap.Uint64("id", uint64(id)))
	s.invalidate(ctx)
	return nil
}

// Get returns transaction id.
func (s *Service) Get(ctx context.Context, id idalloc.ID) (*Transaction, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page ordered by ID, served from the cache when possible.
// When the cache is unreachable the page is read from the store.
func (s *Service) List(ctx context.Context, req PageRequest) (Page[Transaction], error) {
	if err := req.Validate(); err != nil {
		return Page[Transaction]{}, err
	}

	gen, err := s.cache.Generation(ctx)
	cacheOK := err == nil
	if err != nil {
		s.logger.Warn("page cache generation read failed", zap.Error(err))
	} else if cached, ok, err := s.cache.GetPage(ctx, gen, req); err != nil {
		s.logger.Warn("page cache read failed", zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return Page[Transaction]{}, err
	}

	var content []Transaction
	if total > 0 {
		content, err = s.repo.List(ctx, req.Offset(), req.Size)
		if err != nil {
			return Page[Transaction]{}, err
		}
	}

	page := NewPage(content, req, total)
	if cacheOK {
		if err := s.cache.PutPage(ctx, gen, req, page); err != nil {
			s.logger.Warn("page cache write failed", zap.Error(err))
		}
	}
	return page, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("page cache invalidation failed", zap.Error(err))
	}
}
