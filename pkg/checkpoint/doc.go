// Package checkpoint stores the continuation token of an extraction in Redis
// so an interrupted run can resume from the last fully emitted page.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	key := checkpoint.KeyFor("events", pagination.FirstPageParams(cfg))
//	store := checkpoint.NewStore(redisClient, key, checkpoint.DefaultTTL)
//
//	token, err := store.Load(ctx) // "" when nothing is stored
//
// The key covers the stream and every filter of the first page, so a run
// with different filters never picks up another run's token.
//
// # Lifecycle
//
// A token is saved after each page whose records were all emitted, and the
// checkpoint is cleared once the last page has been seen. Entries expire
// after the store's TTL so abandoned runs do not accumulate.
//
// # Metrics
//
//   - frontapp_checkpoint_loads_total{result} - hit or miss
//   - frontapp_checkpoint_saves_total - tokens saved
//   - frontapp_checkpoint_errors_total{operation} - get, set, delete
package checkpoint
