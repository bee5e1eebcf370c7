package store

import (
	"context"
	"encoding/json"
	"fmt"

	"wcsign/internal/domain"
)

// collection stores JSON records of one kind under prefix.
type collection[T any] struct {
	kv     domain.KeyValueStore
	prefix string
}

func (c collection[T]) put(ctx context.Context, id string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s%s: %w", c.prefix, id, err)
	}
	return c.kv.Set(ctx, c.prefix+id, b)
}

func (c collection[T]) get(ctx context.Context, id string) (T, bool, error) {
	var v T
	b, ok, err := c.kv.Get(ctx, c.prefix+id)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("decode %s%s: %w", c.prefix, id, err)
	}
	return v, true, nil
}

func (c collection[T]) all(ctx context.Context) ([]T, error) {
	keys, err := c.kv.Keys(ctx, c.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v, ok, err := c.get(ctx, k[len(c.prefix):])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c collection[T]) del(ctx context.Context, id string) error {
	return c.kv.Delete(ctx, c.prefix+id)
}
