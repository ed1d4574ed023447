package querycache

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
)

// listResult wraps the tuple result from List operations so it caches as a
// single payload.
type listResult[T any] struct {
	Records []T `msgpack:"records"`
	Total   int `msgpack:"total"`
}

// Repository is the slice of a go-repository-bun repository this decorator
// caches. Read methods flow through the hook with the user bound to the
// context; write methods pass through and invalidate the model.
type Repository[T any] interface {
	Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)
	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
}

// CachedRepository decorates a base repository with namespaced query
// caching. It is a drop-in replacement: correctness never depends on the
// cache layer, and a nil hook degrades to plain pass-through.
type CachedRepository[T any] struct {
	base      Repository[T]
	hook      *Hook
	model     string
	dependsOn []string
}

// RepositoryOption customizes a CachedRepository.
type RepositoryOption[T any] func(*CachedRepository[T])

// WithModelName overrides the model identifier derived from T's type name.
func WithModelName[T any](model string) RepositoryOption[T] {
	return func(c *CachedRepository[T]) { c.model = model }
}

// WithDependencies registers additional models whose writes invalidate
// this repository's cached reads.
func WithDependencies[T any](models ...string) RepositoryOption[T] {
	return func(c *CachedRepository[T]) { c.dependsOn = models }
}

// NewCachedRepository wraps base with caching through hook. The model
// identifier defaults to T's snake_cased type name.
func NewCachedRepository[T any](base Repository[T], hook *Hook, opts ...RepositoryOption[T]) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:  base,
		hook:  hook,
		model: modelName[T](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model identifier used for invalidation.
func (c *CachedRepository[T]) Model() string { return c.model }

// Get retrieves a single record matching the criteria, cached.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return Execute(ctx, c.hook, c.query("Get", criteria), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by id, cached.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return Execute(ctx, c.hook, c.query("GetByID", id, criteria), func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves records and the matching total, cached as one payload.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	res, err := Execute(ctx, c.hook, c.query("List", criteria), func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of matching records, cached.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return Execute(ctx, c.hook, c.query("Count", criteria), func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// Create passes through to the base repository and invalidates the model.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidate(ctx)
	}
	return result, err
}

// Update passes through to the base repository and invalidates the model.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidate(ctx)
	}
	return result, err
}

// Delete passes through to the base repository and invalidates the model.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

func (c *CachedRepository[T]) query(operation string, args ...any) Query {
	return Query{
		Operation: operation,
		Model:     c.model,
		DependsOn: c.dependsOn,
		Args:      args,
	}
}

func (c *CachedRepository[T]) invalidate(ctx context.Context) {
	// Invalidation failures are not surfaced to the writer; the engine
	// logs them and version-based namespacing bounds the staleness.
	_ = c.hook.InvalidateModel(ctx, c.model)
}
