// Package cache provides the caching layer for tool results, with a common
// interface over several backends and type-safe generic helpers.
//
// Four backends are provided:
//
//   - [NewInMemory] — in-process map, no serialization, lost on restart.
//   - [NewSQLite] — file-backed via modernc.org/sqlite (pure Go), values
//     stored as msgpack blobs; survives restarts. Good fit for the CLI.
//   - [NewRedis] — shared cache over go-redis, values stored as msgpack
//     blobs in a hash alongside a hit counter, expiry via native TTL.
//   - [NewComposite] — chains tiers, e.g. in-memory L1 in front of redis L2.
//
// The [Cache] interface uses any for values because Go does not allow
// generic methods on interfaces; the package-level [Get] and [Exec] generics
// recover type safety and handle msgpack decoding for serialized backends.
//
// [Exec] implements the read-through pattern used by the tools service:
// check the cache, invoke on a miss, store the result. The [Invoker] found
// bool distinguishes "not found" from "found a zero value" so absent records
// are never cached. Cache read errors are propagated; Set failures after a
// successful invoke are swallowed since the caller already has their value.
//
// [Key] derives stable keys from an operation name and its arguments, so the
// same query hits the same entry regardless of which process asked.
package cache
