// Package cache provides second-level cache backends for the engine.
//
// Memory keeps rows in-process with github.com/patrickmn/go-cache. Redis
// shares them between processes through github.com/redis/go-redis/v9.
//
// Both store objects under (class, key) and collections as key lists under
// (scope, signature). Rows are stored as JSON so a cached row can never alias
// a transaction's live field map.
package cache
