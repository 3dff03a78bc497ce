package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

// redisTestPath returns a fresh collection path and removes its keys after the test.
func redisTestPath(t *testing.T, client *redis.Client) string {
	path := domain.CollectionPath("test-" + uuid.NewString())
	t.Cleanup(func() {
		ctx := context.Background()
		ids, _ := client.SMembers(ctx, idsKey(path)).Result()
		for _, id := range ids {
			client.Del(ctx, docKey(path, id))
		}
		client.Del(ctx, idsKey(path))
	})
	return path
}

func TestRedisAdapter_CreateAndLoad(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	path := redisTestPath(t, client)

	item := newItem("Widget", 10)
	id, err := adapter.Create(ctx, path, item)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snap, err := adapter.Load(ctx, path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(snap.Items))
	}
	got := snap.Items[0]
	if got.ID != id || got.Name != "Widget" || got.Quantity != 10 || got.OwnerID != "user-1" {
		t.Errorf("unexpected item: %+v", got)
	}
	if domain.FormatPrice(got.Price) != "2.50" {
		t.Errorf("expected price 2.50, got %s", domain.FormatPrice(got.Price))
	}
	if !got.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("expected createdAt %v, got %v", item.CreatedAt, got.CreatedAt)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}

	// Verify the stored price string directly
	price, _ := client.HGet(ctx, docKey(path, id), "price").Result()
	if price != "2.50" {
		t.Errorf("expected stored price 2.50, got %s", price)
	}
}

func TestRedisAdapter_UpdateAndDelete(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	path := redisTestPath(t, client)

	id, _ := adapter.Create(ctx, path, newItem("a", 1))

	name := "b"
	qty := 7
	if err := adapter.Update(ctx, path, id, domain.Patch{Name: &name, Quantity: &qty, UpdatedAt: domain.Now()}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	snap, _ := adapter.Load(ctx, path)
	if snap.Items[0].Name != "b" || snap.Items[0].Quantity != 7 || snap.Items[0].Version != 2 {
		t.Errorf("unexpected item after update: %+v", snap.Items[0])
	}

	if err := adapter.Delete(ctx, path, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := adapter.Delete(ctx, path, id); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := adapter.Update(ctx, path, id, domain.Patch{Name: &name, UpdatedAt: domain.Now()}); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}

	// Update of a deleted document must not resurrect it.
	exists, _ := client.Exists(ctx, docKey(path, id)).Result()
	if exists != 0 {
		t.Error("document was recreated")
	}
}

func TestRedisAdapter_IncrementGuardsFloor(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	path := redisTestPath(t, client)

	id, _ := adapter.Create(ctx, path, newItem("a", 1))

	q, err := adapter.Increment(ctx, path, id, -1, 0, domain.Now())
	if err != nil || q != 0 {
		t.Fatalf("expected 0, got %d (%v)", q, err)
	}
	if _, err := adapter.Increment(ctx, path, id, -1, 0, domain.Now()); !errors.Is(err, port.ErrBelowFloor) {
		t.Errorf("expected ErrBelowFloor, got %v", err)
	}
	if _, err := adapter.Increment(ctx, path, "missing", 1, 0, domain.Now()); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisAdapter_IncrementConcurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	path := redisTestPath(t, client)

	initialStock := 20
	totalRequests := 50
	id, _ := adapter.Create(ctx, path, newItem("a", initialStock))

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.Increment(ctx, path, id, -1, 0, domain.Now())
			if err == nil {
				successCount.Add(1)
				return
			}
			if !errors.Is(err, port.ErrBelowFloor) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	stock, _ := client.HGet(ctx, docKey(path, id), "quantity").Int()
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestRedisAdapter_SubscribeFollowsWrites(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	path := redisTestPath(t, client)

	sub, err := adapter.Subscribe(ctx, path)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if snap := nextSnapshot(t, sub); len(snap.Items) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Items)
	}

	id, _ := adapter.Create(ctx, path, newItem("a", 3))
	waitFor(t, sub, func(s domain.Snapshot) bool { return len(s.Items) == 1 && s.Items[0].ID == id })

	adapter.Increment(ctx, path, id, 1, 0, domain.Now())
	waitFor(t, sub, func(s domain.Snapshot) bool { return len(s.Items) == 1 && s.Items[0].Quantity == 4 })

	adapter.Delete(ctx, path, id)
	waitFor(t, sub, func(s domain.Snapshot) bool { return len(s.Items) == 0 })

	sub.Unsubscribe()
	for range sub.Updates() {
	}
	if sub.Err() != nil {
		t.Errorf("expected clean close, got %v", sub.Err())
	}
}

// hashTag returns the part of key Redis Cluster hashes on.
func hashTag(key string) string {
	start := strings.Index(key, "{")
	if start < 0 {
		return key
	}
	end := strings.Index(key[start+1:], "}")
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

func TestRedisKeys_ShareCollectionSlot(t *testing.T) {
	for _, path := range []string{
		domain.CollectionPath("shop"),
		domain.CollectionPath("odd}app{id"),
	} {
		want := hashTag(idsKey(path))
		if want == idsKey(path) {
			t.Fatalf("%s: ids key carries no hash tag", path)
		}
		for _, key := range []string{docKey(path, "a"), docKey(path, "b"), docKeyPrefix(path) + "c"} {
			if got := hashTag(key); got != want {
				t.Errorf("%s: key %s hashes on %q, want %q", path, key, got, want)
			}
		}
	}
}
