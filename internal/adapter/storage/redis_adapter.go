package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shop-stock/internal/core/domain"
	"github.com/rl1809/shop-stock/internal/port"
)

const stockKeyPrefix = "stock:"

var createScript = redis.NewScript(`
local doc = KEYS[1]
local ids = KEYS[2]

redis.call('HSET', doc,
	'name', ARGV[3],
	'quantity', ARGV[4],
	'price', ARGV[5],
	'owner_id', ARGV[6],
	'created_at', ARGV[7],
	'updated_at', ARGV[8],
	'version', 1)
redis.call('SADD', ids, ARGV[2])
redis.call('PUBLISH', ARGV[1], 'create')
return 1
`)

var updateScript = redis.NewScript(`
local doc = KEYS[1]

if redis.call('EXISTS', doc) == 0 then
	return 0
end

for i = 3, #ARGV, 2 do
	redis.call('HSET', doc, ARGV[i], ARGV[i + 1])
end
redis.call('HSET', doc, 'updated_at', ARGV[2])
redis.call('HINCRBY', doc, 'version', 1)
redis.call('PUBLISH', ARGV[1], 'update')
return 1
`)

var incrementScript = redis.NewScript(`
local doc = KEYS[1]
local delta = tonumber(ARGV[2])
local floor = tonumber(ARGV[3])

if redis.call('EXISTS', doc) == 0 then
	return {0, 0}
end

local current = tonumber(redis.call('HGET', doc, 'quantity'))
if current + delta < floor then
	return {2, current}
end

local updated = redis.call('HINCRBY', doc, 'quantity', delta)
redis.call('HSET', doc, 'updated_at', ARGV[4])
redis.call('HINCRBY', doc, 'version', 1)
redis.call('PUBLISH', ARGV[1], 'increment')
return {1, updated}
`)

var deleteScript = redis.NewScript(`
local doc = KEYS[1]
local ids = KEYS[2]

if redis.call('DEL', doc) == 0 then
	return 0
end

redis.call('SREM', ids, ARGV[2])
redis.call('PUBLISH', ARGV[1], 'delete')
return 1
`)

// snapshotScript reads document hashes named from the id set rather than from
// KEYS. Every key of a collection carries the same hash tag, so they all hash
// to the slot of KEYS[1] on a cluster.
var snapshotScript = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local out = {}
for _, id in ipairs(ids) do
	out[#out + 1] = id
	out[#out + 1] = redis.call('HGETALL', ARGV[1] .. id)
end
return out
`)

const (
	incrementOK         = 1
	incrementBelowFloor = 2
)

// RedisAdapter stores each document as a hash and announces every write on a
// per-collection channel. Subscribers reload the whole collection atomically
// after each announcement.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// collectionTag wraps the path in a cluster hash tag.
func collectionTag(path string) string {
	return stockKeyPrefix + "{" + path + "}"
}

func idsKey(path string) string {
	return collectionTag(path) + ":ids"
}

func docKeyPrefix(path string) string {
	return collectionTag(path) + ":doc:"
}

func docKey(path, id string) string {
	return docKeyPrefix(path) + id
}

func changesChannel(path string) string {
	return stockKeyPrefix + path + ":changes"
}

func (r *RedisAdapter) Subscribe(ctx context.Context, path string) (port.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(subCtx, changesChannel(path))

	// Wait for the subscription confirmation so no write is missed between
	// the first load and the first announcement.
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}

	f := newFeed(cancel)
	go func() {
		defer pubsub.Close()

		if err := r.publishTo(subCtx, path, f); err != nil {
			f.stop(err)
			return
		}
		for {
			if _, err := pubsub.ReceiveMessage(subCtx); err != nil {
				if subCtx.Err() != nil {
					f.stop(nil)
					return
				}
				f.stop(fmt.Errorf("receive change: %w", err))
				return
			}
			if err := r.publishTo(subCtx, path, f); err != nil {
				if subCtx.Err() != nil {
					f.stop(nil)
					return
				}
				f.stop(err)
				return
			}
		}
	}()
	return f, nil
}

func (r *RedisAdapter) publishTo(ctx context.Context, path string, f *feed) error {
	snap, err := r.Load(ctx, path)
	if err != nil {
		return err
	}
	f.offer(snap)
	return nil
}

// Load reads the whole collection in one script call.
func (r *RedisAdapter) Load(ctx context.Context, path string) (domain.Snapshot, error) {
	raw, err := snapshotScript.Run(ctx, r.client, []string{idsKey(path)}, docKeyPrefix(path)).Slice()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	items := make([]domain.StockItem, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		id, _ := raw[i].(string)
		pairs, _ := raw[i+1].([]interface{})
		if id == "" || len(pairs) == 0 {
			continue
		}
		fields := make(map[string]string, len(pairs)/2)
		for j := 0; j+1 < len(pairs); j += 2 {
			k, _ := pairs[j].(string)
			v, _ := pairs[j+1].(string)
			fields[k] = v
		}
		item, err := decodeItem(id, fields)
		if err != nil {
			return domain.Snapshot{}, err
		}
		items = append(items, item)
	}
	sortByCreation(items)
	return domain.Snapshot{Items: items, ReceivedAt: time.Now().UTC()}, nil
}

func (r *RedisAdapter) Create(ctx context.Context, path string, item domain.StockItem) (string, error) {
	id := uuid.NewString()
	err := createScript.Run(ctx, r.client,
		[]string{docKey(path, id), idsKey(path)},
		changesChannel(path), id,
		item.Name, item.Quantity, domain.FormatPrice(item.Price), item.OwnerID,
		toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
	).Err()
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

func (r *RedisAdapter) Update(ctx context.Context, path, id string, patch domain.Patch) error {
	args := []interface{}{changesChannel(path), toMillis(patch.UpdatedAt)}
	if patch.Name != nil {
		args = append(args, "name", *patch.Name)
	}
	if patch.Quantity != nil {
		args = append(args, "quantity", *patch.Quantity)
	}
	if patch.Price != nil {
		args = append(args, "price", domain.FormatPrice(*patch.Price))
	}
	if patch.OwnerID != nil {
		args = append(args, "owner_id", *patch.OwnerID)
	}

	result, err := updateScript.Run(ctx, r.client, []string{docKey(path, id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if result == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (r *RedisAdapter) Increment(ctx context.Context, path, id string, delta, floor int, updatedAt time.Time) (int, error) {
	result, err := incrementScript.Run(ctx, r.client,
		[]string{docKey(path, id)},
		changesChannel(path), delta, floor, toMillis(updatedAt),
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("increment quantity: %w", err)
	}
	if len(result) != 2 {
		return 0, fmt.Errorf("increment quantity: unexpected reply %v", result)
	}

	switch result[0] {
	case incrementOK:
		return int(result[1]), nil
	case incrementBelowFloor:
		return int(result[1]), port.ErrBelowFloor
	default:
		return 0, port.ErrNotFound
	}
}

func (r *RedisAdapter) Delete(ctx context.Context, path, id string) error {
	result, err := deleteScript.Run(ctx, r.client,
		[]string{docKey(path, id), idsKey(path)},
		changesChannel(path), id,
	).Int()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if result == 0 {
		return port.ErrNotFound
	}
	return nil
}

func decodeItem(id string, fields map[string]string) (domain.StockItem, error) {
	item := domain.StockItem{
		ID:      id,
		Name:    fields["name"],
		OwnerID: fields["owner_id"],
	}

	var err error
	if item.Quantity, err = strconv.Atoi(fields["quantity"]); err != nil {
		return domain.StockItem{}, fmt.Errorf("decode %s quantity: %w", id, err)
	}
	if item.Price, err = decimal.NewFromString(fields["price"]); err != nil {
		return domain.StockItem{}, fmt.Errorf("decode %s price: %w", id, err)
	}
	if item.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return domain.StockItem{}, fmt.Errorf("decode %s version: %w", id, err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("decode %s created_at: %w", id, err)
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("decode %s updated_at: %w", id, err)
	}
	item.CreatedAt = fromMillis(created)
	item.UpdatedAt = fromMillis(updated)
	return item, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
