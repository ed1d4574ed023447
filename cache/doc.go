// Package cache provides the shared contracts for per-tenant cache
// namespacing: the store protocol, the serialization codec, the error
// taxonomy, and configuration.
//
// # Overview
//
// This package is the leaf of the module. It exports:
//
//   - Store: the shared key/value store protocol (GET/SET/SETNX/INCR/DEL/
//     EXISTS/SCAN) with atomic primitives and logical partitions
//   - Codec: the payload serializer with a distinct deserialization
//     failure type for targeted corruption recovery
//   - Config: subsystem configuration with validation
//   - the error taxonomy shared by every other package
//
// # Error taxonomy
//
// ValidationError and ConfigurationError indicate programming or
// deployment defects and are raised synchronously at the point of use.
// BackendUnavailableError, SerializationError, DeserializationError and
// unexpected errors are runtime cache-path failures: they are caught at
// the query-execution boundary, logged, and converted into a direct-query
// fallback, never surfaced to business-logic callers. Classify maps any
// error onto the kind used for metrics labels.
//
// # Codec guarantees
//
// The default msgpack codec satisfies the round-trip law for nil,
// booleans, integers, floats, strings, slices, string-keyed maps, entity
// structs and homogeneous entity slices: Deserialize(Serialize(v))
// reproduces both the value and its type, including empty (not nil)
// collections. SafeSerialize and SafeDeserialize are non-throwing
// variants returning a caller-supplied default.
//
// # Partitions
//
// Store implementations are bound to exactly one logical partition.
// DefaultConfig reserves distinct partitions for the namespace + query
// cache, the benchmark harness, and test isolation; Partitions.Validate
// rejects any overlap.
//
// For the namespace manager see the namespace package; for query
// integration see querycache.
package cache
