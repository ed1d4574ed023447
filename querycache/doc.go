// Package querycache integrates per-user cache namespacing with an
// automatic query-result cache engine.
//
// The engine performs its own fingerprinting, payload storage and
// model-level invalidation-on-write; this package never duplicates that
// tracking. It does exactly two things on top:
//
//   - key namespacing: when a user is bound to the context (WithUser), the
//     Hook supplies the engine a KeyFunc that prefixes the engine's own
//     fingerprint with the user's current namespace prefix. Without a user
//     context the engine's original key passes through unmodified, so
//     unrelated cache consumers (locks, sequence counters, token caches)
//     are never touched.
//
//   - failure policy: cached execution is wrapped with fail-open
//     fallback. Runtime cache errors are logged and converted into a
//     direct query; deserialization failures additionally delete the
//     corrupt key; if the direct re-execution fails too, the caller gets
//     an empty result instead of an error. Only validation and
//     configuration defects are raised.
//
// The key-builder is a first-class strategy supplied at call time, never a
// rewritten function pointer inside the engine, and the user binding is an
// explicit scoped context value, never thread-local state.
//
// CachedRepository applies the hook to a go-repository-bun style
// repository: reads are cached under the namespaced key, writes pass
// through and delegate invalidation to the engine.
package querycache
