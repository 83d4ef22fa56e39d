package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, ttl, ""), mr
}

func TestRedisCache_GetSet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()
	key := Key("collections", "/collections")

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, key, []byte(`{"data":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(val) != `{"data":[]}` {
		t.Errorf("unexpected value %q", val)
	}
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	key := Key("fields", "/fields/posts")
	_ = c.Set(ctx, key, []byte("x"))

	mr.FastForward(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, key); ok {
		t.Error("expected entry to expire")
	}
}

func TestRedisCache_Key(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	a := Key("fields", "/fields/posts")
	b := Key("fields", "/fields/pages")
	if a == b {
		t.Error("different paths must hash to different keys")
	}
	if a != Key("fields", "/fields/posts") {
		t.Error("key must be stable")
	}

	_ = c.Set(ctx, a, []byte("1"))
	if _, err := mr.Get("directus:get:" + a); err != nil {
		t.Errorf("expected entry under the default prefix: %v", err)
	}
}

func TestRedisCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		_ = c.Set(ctx, Key("fields", fmt.Sprintf("/fields/c%d", i)), []byte("1"))
	}
	keep := Key("relations", "/relations/posts")
	_ = c.Set(ctx, keep, []byte("1"))

	if err := c.Invalidate(ctx, "fields"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "directus:get:"+keep {
		t.Errorf("expected only %s to survive, got %v", keep, keys)
	}
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newTestCache(t, 0)
	mr.Close()

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Error("expected error when redis is down")
	}
}
