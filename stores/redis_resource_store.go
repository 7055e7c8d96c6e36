package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/shield"
)

// RedisResourceStore keeps resources in Redis: each resource as a JSON
// value under resource:{id}, creation order in the resource:order list and
// child ids in resource:children:{parentID} sets.
type RedisResourceStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisResourceStore(client *redis.Client) *RedisResourceStore {
	return &RedisResourceStore{client: client, keyPrefix: "shield"}
}

func (r *RedisResourceStore) key(id string) string {
	return fmt.Sprintf("%s:resource:%s", r.keyPrefix, id)
}

func (r *RedisResourceStore) orderKey() string {
	return r.keyPrefix + ":resource:order"
}

func (r *RedisResourceStore) childrenKey(parentID string) string {
	return fmt.Sprintf("%s:resource:children:%s", r.keyPrefix, parentID)
}

func (r *RedisResourceStore) CreateResource(ctx context.Context, res *shield.Resource) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(res.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return &shield.ConflictError{Reason: "resource id already exists", ConflictingIDs: []string{res.ID}}
	}
	if err := r.client.RPush(ctx, r.orderKey(), res.ID).Err(); err != nil {
		return err
	}
	if res.ParentID != "" {
		return r.client.SAdd(ctx, r.childrenKey(res.ParentID), res.ID).Err()
	}
	return nil
}

func (r *RedisResourceStore) UpdateResource(ctx context.Context, res *shield.Resource) error {
	old, err := r.GetResource(ctx, res.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(res.ID), data, 0).Err(); err != nil {
		return err
	}
	if old.ParentID != res.ParentID {
		if old.ParentID != "" {
			if err := r.client.SRem(ctx, r.childrenKey(old.ParentID), res.ID).Err(); err != nil {
				return err
			}
		}
		if res.ParentID != "" {
			return r.client.SAdd(ctx, r.childrenKey(res.ParentID), res.ID).Err()
		}
	}
	return nil
}

func (r *RedisResourceStore) DeleteResource(ctx context.Context, id string) error {
	res, err := r.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return err
	}
	if err := r.client.LRem(ctx, r.orderKey(), 0, id).Err(); err != nil {
		return err
	}
	if res.ParentID != "" {
		return r.client.SRem(ctx, r.childrenKey(res.ParentID), id).Err()
	}
	return nil
}

func (r *RedisResourceStore) GetResource(ctx context.Context, id string) (*shield.Resource, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("get %s: %w", id, shield.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	res := &shield.Resource{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *RedisResourceStore) ListResources(ctx context.Context) ([]*shield.Resource, error) {
	ids, err := r.client.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*shield.Resource, 0, len(ids))
	for _, id := range ids {
		res, err := r.GetResource(ctx, id)
		if err != nil {
			// order list can briefly lag a delete
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *RedisResourceStore) GetChildren(ctx context.Context, id string) ([]*shield.Resource, error) {
	ids, err := r.client.SMembers(ctx, r.childrenKey(id)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*shield.Resource, 0, len(ids))
	for _, cid := range ids {
		res, err := r.GetResource(ctx, cid)
		if err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
