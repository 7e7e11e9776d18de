// Package redis provides a Redis-backed store.Checkpointer.
//
// Each thread's snapshot is kept as one JSON value under
// "{prefix}thread:{thread_id}". An optional TTL is refreshed on every Put, so
// idle conversations expire on their own.
//
//	cp := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr: "localhost:6379",
//		TTL:  24 * time.Hour,
//	})
package redis
