package engineinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-tenant-cache/cache"
	"github.com/goliatone/go-tenant-cache/pkg/testsupport"
	"github.com/goliatone/go-tenant-cache/querycache"
)

type payload struct {
	Name  string `msgpack:"name"`
	Count int    `msgpack:"count"`
}

// coldConfig disables the in-process tier so every read is observable
// against the fake store.
func coldConfig() Config {
	cfg := DefaultConfig()
	cfg.HotTier = false
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*StoreEngine, *testsupport.FakeStore) {
	t.Helper()
	store := testsupport.NewFakeStore(cache.PartitionTest)
	engine, err := New(store, cache.NewMsgpackCodec(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return engine, store
}

func newPayload() any { return new(payload) }

func fetchPayload(calls *int) querycache.FetchFunc {
	return func(ctx context.Context) (any, error) {
		*calls++
		return payload{Name: "widget", Count: 3}, nil
	}
}

func TestNewValidation(t *testing.T) {
	store := testsupport.NewFakeStore(cache.PartitionTest)
	codec := cache.NewMsgpackCodec()

	if _, err := New(nil, codec, coldConfig(), nil); err == nil {
		t.Error("New(nil store) expected error")
	}
	if _, err := New(store, nil, coldConfig(), nil); err == nil {
		t.Error("New(nil codec) expected error")
	}

	bad := coldConfig()
	bad.StoreTTL = 0
	if _, err := New(store, codec, bad, nil); err == nil {
		t.Error("New(zero TTL) expected error")
	}
}

func TestGetOrFetchMissThenHit(t *testing.T) {
	engine, store := newTestEngine(t, coldConfig())
	ctx := context.Background()
	q := querycache.Query{Model: "widget", Operation: "Get", Args: []any{"id", "w1"}}

	fetches := 0
	result, hit, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches))
	if err != nil {
		t.Fatalf("GetOrFetch() miss error = %v", err)
	}
	if hit {
		t.Error("first GetOrFetch() reported a hit")
	}
	if got := result.(payload); got.Name != "widget" {
		t.Errorf("GetOrFetch() = %+v", got)
	}

	result, hit, err = engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches))
	if err != nil {
		t.Fatalf("GetOrFetch() hit error = %v", err)
	}
	if !hit || fetches != 1 {
		t.Errorf("second GetOrFetch() hit = %v, fetches = %d, want cached", hit, fetches)
	}
	if got := result.(payload); got.Count != 3 {
		t.Errorf("cached payload = %+v, want round-tripped value", got)
	}

	key := defaultKey("widget", engine.Fingerprint(q))
	if ops := store.CallsForKey(key); len(ops) == 0 {
		t.Errorf("no store traffic recorded for %q", key)
	}
}

func TestGetOrFetchUsesKeyBuilder(t *testing.T) {
	engine, store := newTestEngine(t, coldConfig())
	ctx := context.Background()
	q := querycache.Query{Model: "widget", Operation: "Get"}

	var receivedFP string
	keyFn := func(fp string) (string, error) {
		receivedFP = fp
		return "cache:42:v1:query:" + fp, nil
	}

	fetches := 0
	if _, _, err := engine.GetOrFetch(ctx, q, keyFn, newPayload, fetchPayload(&fetches)); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if receivedFP != engine.Fingerprint(q) {
		t.Errorf("key builder received %q, want engine fingerprint %q", receivedFP, engine.Fingerprint(q))
	}
	wantKey := "cache:42:v1:query:" + receivedFP
	if ops := store.CallsForKey(wantKey); len(ops) == 0 {
		t.Errorf("no store traffic for namespaced key %q", wantKey)
	}
}

func TestGetOrFetchKeyBuilderErrorPropagates(t *testing.T) {
	engine, _ := newTestEngine(t, coldConfig())
	wantErr := &cache.ValidationError{Field: "userID", Message: "must be positive"}

	fetches := 0
	_, _, err := engine.GetOrFetch(context.Background(), querycache.Query{Model: "widget"},
		func(string) (string, error) { return "", wantErr },
		newPayload, fetchPayload(&fetches))

	var validationErr *cache.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("GetOrFetch() error = %v, want key builder's ValidationError", err)
	}
	if fetches != 0 {
		t.Errorf("fetch ran %d times after key failure, want 0", fetches)
	}
}

func TestGetOrFetchCorruptPayload(t *testing.T) {
	engine, store := newTestEngine(t, coldConfig())
	q := querycache.Query{Model: "widget", Operation: "Get"}
	key := defaultKey("widget", engine.Fingerprint(q))
	store.Seed(key, []byte{0xc1, 0x00, 0x01})

	fetches := 0
	_, _, err := engine.GetOrFetch(context.Background(), q, nil, newPayload, fetchPayload(&fetches))

	var deserialization *cache.DeserializationError
	if !errors.As(err, &deserialization) {
		t.Fatalf("GetOrFetch() error = %v, want DeserializationError", err)
	}
	if deserialization.Key != key {
		t.Errorf("DeserializationError.Key = %q, want %q", deserialization.Key, key)
	}
}

// A failed populate write costs a future miss, nothing more.
func TestGetOrFetchToleratesSetFailure(t *testing.T) {
	engine, store := newTestEngine(t, coldConfig())
	store.FailWith(testsupport.OpSet, &cache.BackendUnavailableError{Op: "set", Err: errors.New("down")})

	fetches := 0
	result, hit, err := engine.GetOrFetch(context.Background(), querycache.Query{Model: "widget"}, nil, newPayload, fetchPayload(&fetches))
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v, want set failure absorbed", err)
	}
	if hit || fetches != 1 {
		t.Errorf("hit = %v, fetches = %d, want fresh fetch", hit, fetches)
	}
	if got := result.(payload); got.Name != "widget" {
		t.Errorf("result = %+v", got)
	}
}

func TestGetOrFetchReadFailurePropagates(t *testing.T) {
	engine, store := newTestEngine(t, coldConfig())
	store.FailWith(testsupport.OpGet, &cache.BackendUnavailableError{Op: "get", Err: errors.New("connection refused")})

	fetches := 0
	_, _, err := engine.GetOrFetch(context.Background(), querycache.Query{Model: "widget"}, nil, newPayload, fetchPayload(&fetches))
	if cache.Classify(err) != cache.KindBackendUnavailable {
		t.Errorf("GetOrFetch() error = %v, want backend unavailable", err)
	}
	if fetches != 0 {
		t.Errorf("fetch ran %d times on unreadable backend, want 0", fetches)
	}
}

func TestInvalidateModel(t *testing.T) {
	engine, _ := newTestEngine(t, coldConfig())
	ctx := context.Background()

	queries := []querycache.Query{
		{Model: "widget", Operation: "List"},
		{Model: "widget", Operation: "Count"},
		{Model: "order", Operation: "List", DependsOn: []string{"widget"}},
		{Model: "account", Operation: "List"},
	}
	fetches := 0
	for _, q := range queries {
		if _, _, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches)); err != nil {
			t.Fatalf("GetOrFetch(%s/%s) error = %v", q.Model, q.Operation, err)
		}
	}

	if err := engine.InvalidateModel(ctx, "widget"); err != nil {
		t.Fatalf("InvalidateModel() error = %v", err)
	}

	// Direct widget queries and the dependent order query now miss; the
	// unrelated account query still hits.
	for i, q := range queries {
		fetchesBefore := fetches
		_, hit, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches))
		if err != nil {
			t.Fatalf("GetOrFetch() after invalidation error = %v", err)
		}
		wantHit := q.Model == "account"
		if hit != wantHit {
			t.Errorf("query %d (%s/%s) hit = %v, want %v", i, q.Model, q.Operation, hit, wantHit)
		}
		if !wantHit && fetches != fetchesBefore+1 {
			t.Errorf("query %d did not re-fetch after invalidation", i)
		}
	}

	// Invalidating a model with no registered keys is a no-op.
	if err := engine.InvalidateModel(ctx, "unknown"); err != nil {
		t.Errorf("InvalidateModel(unknown) error = %v", err)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	engine, _ := newTestEngine(t, coldConfig())
	ctx := context.Background()
	q := querycache.Query{Model: "widget", Operation: "Get"}

	fetches := 0
	if _, _, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches)); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	key := defaultKey("widget", engine.Fingerprint(q))
	if err := engine.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, hit, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches))
	if err != nil {
		t.Fatalf("GetOrFetch() after delete error = %v", err)
	}
	if hit || fetches != 2 {
		t.Errorf("hit = %v, fetches = %d, want a miss after delete", hit, fetches)
	}
}

// With the hot tier enabled a repeated read is served in process without
// touching the shared store again.
func TestHotTierAbsorbsRepeatReads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HotTierTTL = time.Minute
	engine, store := newTestEngine(t, cfg)
	ctx := context.Background()
	q := querycache.Query{Model: "widget", Operation: "Get"}

	fetches := 0
	if _, _, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches)); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	reads := store.CallCount(testsupport.OpGet)

	result, hit, err := engine.GetOrFetch(ctx, q, nil, newPayload, fetchPayload(&fetches))
	if err != nil {
		t.Fatalf("GetOrFetch() repeat error = %v", err)
	}
	if !hit || fetches != 1 {
		t.Errorf("hit = %v, fetches = %d, want in-process hit", hit, fetches)
	}
	if got := store.CallCount(testsupport.OpGet); got != reads {
		t.Errorf("store reads grew from %d to %d, want hot tier to absorb the repeat", reads, got)
	}
	if got := result.(payload); got.Name != "widget" {
		t.Errorf("result = %+v", got)
	}
}
