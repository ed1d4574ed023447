package querycache

import (
	"context"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/metrics"
	"github.com/goliatone/go-tenant-cache/namespace"
	"github.com/goliatone/go-tenant-cache/pkg/testsupport"
)

type Article struct {
	ID    string `msgpack:"id"`
	Title string `msgpack:"title"`
}

// fakeRepo is a call-counting in-memory Repository[Article].
type fakeRepo struct {
	mu       sync.Mutex
	records  []Article
	getCalls int
	lists    int
	creates  int
	updates  int
	deletes  int
}

func (r *fakeRepo) Get(ctx context.Context, criteria ...repository.SelectCriteria) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if len(r.records) == 0 {
		return Article{}, nil
	}
	return r.records[0], nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Article{}, nil
}

func (r *fakeRepo) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]Article, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	return append([]Article(nil), r.records...), len(r.records), nil
}

func (r *fakeRepo) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

func (r *fakeRepo) Create(ctx context.Context, record Article, criteria ...repository.InsertCriteria) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	r.records = append(r.records, record)
	return record, nil
}

func (r *fakeRepo) Update(ctx context.Context, record Article, criteria ...repository.UpdateCriteria) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	for i, rec := range r.records {
		if rec.ID == record.ID {
			r.records[i] = record
		}
	}
	return record, nil
}

func (r *fakeRepo) Delete(ctx context.Context, record Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.ID != record.ID {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	return nil
}

func (r *fakeRepo) listCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists
}

func newTestRepository(t *testing.T) (*CachedRepository[Article], *fakeRepo, *fakeEngine) {
	t.Helper()
	store := testsupport.NewFakeStore(cache.PartitionTest)
	manager, err := namespace.NewManager(store, "query", nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	engine := newFakeEngine()
	hook, err := NewHook(engine, manager, metrics.NewCollector(), nil)
	if err != nil {
		t.Fatalf("NewHook() error = %v", err)
	}
	base := &fakeRepo{records: []Article{{ID: "a1", Title: "first"}, {ID: "a2", Title: "second"}}}
	return NewCachedRepository[Article](base, hook), base, engine
}

func TestCachedRepositoryModelDefaults(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	if repo.Model() != "article" {
		t.Errorf("Model() = %q, want article", repo.Model())
	}

	named := NewCachedRepository[Article](&fakeRepo{}, nil, WithModelName[Article]("post"))
	if named.Model() != "post" {
		t.Errorf("Model() with override = %q, want post", named.Model())
	}
}

func TestCachedRepositoryListCaches(t *testing.T) {
	repo, base, _ := newTestRepository(t)
	ctx := WithUser(context.Background(), 42)

	records, total, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("List() = %d records / total %d, want 2/2", len(records), total)
	}

	if _, _, err := repo.List(ctx); err != nil {
		t.Fatalf("List() repeat error = %v", err)
	}
	if base.listCalls() != 1 {
		t.Errorf("base List() calls = %d, want 1 (second served from cache)", base.listCalls())
	}
}

func TestCachedRepositoryGetByID(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := WithUser(context.Background(), 42)

	record, err := repo.GetByID(ctx, "a2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.Title != "second" {
		t.Errorf("GetByID() = %+v, want a2", record)
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 2 {
		t.Errorf("Count() = (%d, %v), want (2, nil)", count, err)
	}
}

// Writes pass through to the base repository and invalidate the model so
// subsequent reads miss.
func TestCachedRepositoryWritesInvalidate(t *testing.T) {
	repo, base, engine := newTestRepository(t)
	ctx := WithUser(context.Background(), 42)

	if _, _, err := repo.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if _, err := repo.Create(ctx, Article{ID: "a3", Title: "third"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if base.creates != 1 {
		t.Errorf("base creates = %d, want 1", base.creates)
	}

	if _, err := repo.Update(ctx, Article{ID: "a3", Title: "revised"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := repo.Delete(ctx, Article{ID: "a3"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	engine.mu.Lock()
	invalidations := len(engine.invalidated)
	model := ""
	if invalidations > 0 {
		model = engine.invalidated[0]
	}
	engine.mu.Unlock()
	if invalidations != 3 || model != "article" {
		t.Errorf("invalidations = %d for model %q, want 3 for article", invalidations, model)
	}
}

func TestCachedRepositoryDependencies(t *testing.T) {
	repo := NewCachedRepository[Article](&fakeRepo{}, nil, WithDependencies[Article]("author", "tag"))
	q := repo.query("List")
	if len(q.DependsOn) != 2 || q.DependsOn[0] != "author" {
		t.Errorf("DependsOn = %v, want [author tag]", q.DependsOn)
	}
}
