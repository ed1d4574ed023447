// Package testsupport provides test doubles shared by the package-level
// test suites, most notably an in-memory Store with per-operation failure
// injection and call accounting.
package testsupport

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-tenant-cache/cache"
)

// StoreOp identifies a Store operation for failure injection and call
// accounting.
type StoreOp string

const (
	OpGet    StoreOp = "get"
	OpSet    StoreOp = "set"
	OpSetNX  StoreOp = "setnx"
	OpIncr   StoreOp = "incr"
	OpDel    StoreOp = "del"
	OpExists StoreOp = "exists"
	OpScan   StoreOp = "scan"
)

// FakeStore is an in-memory cache.Store. It records every call, can be
// seeded, and can be told to fail specific operations, which is how the
// fault-tolerance suites inject connection failures and corrupt payloads.
type FakeStore struct {
	mu        sync.Mutex
	partition string
	data      map[string][]byte
	failures  map[StoreOp]error
	calls     []recordedCall
}

type recordedCall struct {
	Op  StoreOp
	Key string
}

// NewFakeStore returns an empty store bound to the given partition.
func NewFakeStore(partition string) *FakeStore {
	return &FakeStore{
		partition: partition,
		data:      make(map[string][]byte),
		failures:  make(map[StoreOp]error),
	}
}

// FailWith makes every subsequent op call return err until cleared.
func (s *FakeStore) FailWith(op StoreOp, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// ClearFailures removes all injected failures.
func (s *FakeStore) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[StoreOp]error)
}

// Seed stores a value without recording a call.
func (s *FakeStore) Seed(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
}

// CallCount returns how many times op was invoked.
func (s *FakeStore) CallCount(op StoreOp) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// CallsForKey returns the operations recorded against key, in order.
func (s *FakeStore) CallsForKey(key string) []StoreOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []StoreOp
	for _, c := range s.calls {
		if c.Key == key {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// TotalCalls returns the number of recorded store operations.
func (s *FakeStore) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// ResetCalls clears the call log but keeps data and failures.
func (s *FakeStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Len returns the number of stored keys.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *FakeStore) record(op StoreOp, key string) error {
	s.calls = append(s.calls, recordedCall{Op: op, Key: key})
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

// Get implements cache.Store.
func (s *FakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpGet, key); err != nil {
		return nil, err
	}
	value, ok := s.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set implements cache.Store. TTLs are ignored; the fake never evicts.
func (s *FakeStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpSet, key); err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// SetNX implements cache.Store.
func (s *FakeStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpSetNX, key); err != nil {
		return false, err
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = append([]byte(nil), value...)
	return true, nil
}

// Incr implements cache.Store.
func (s *FakeStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpIncr, key); err != nil {
		return 0, err
	}
	current := int64(0)
	if raw, ok := s.data[key]; ok {
		parsed, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, &cache.BackendUnavailableError{Op: "incr", Key: key, Err: err}
		}
		current = parsed
	}
	current++
	s.data[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

// Del implements cache.Store.
func (s *FakeStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if err := s.record(OpDel, key); err != nil {
			return err
		}
		delete(s.data, key)
	}
	return nil
}

// Exists implements cache.Store.
func (s *FakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpExists, key); err != nil {
		return false, err
	}
	_, ok := s.data[key]
	return ok, nil
}

// Scan implements cache.Store using glob-style matching.
func (s *FakeStore) Scan(ctx context.Context, pattern string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpScan, pattern); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Partition implements cache.Store.
func (s *FakeStore) Partition() string { return s.partition }
