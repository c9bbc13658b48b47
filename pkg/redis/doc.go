// Package redis connects to Redis with go-redis and provides the distributed
// lock that keeps the minute trigger a singleton across dispatcher replicas.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	locker, _ := redis.NewLocker(client)
//
//	ok, err := locker.Acquire(ctx, "dispatch:tick:202501011000", token, 50*time.Second)
//	if ok {
//	    defer locker.Release(context.WithoutCancel(ctx), "dispatch:tick:202501011000", token)
//	}
//
// Healthcheck returns a closure for the readiness probe.
package redis
