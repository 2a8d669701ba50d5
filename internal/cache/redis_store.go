package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dex-chart-datafeed/internal/model"
)

const (
	fieldTime = "time"
	fieldBar  = "bar"

	maxTxRetries = 5
)

// Compile-time check to ensure RedisLastBarStore implements LastBarStore
var _ model.LastBarStore = (*RedisLastBarStore)(nil)

// RedisLastBarStore 每个 symbol 一个 hash：time 用于比较，bar 为 JSON
type RedisLastBarStore struct {
	client *redis.Client
	prefix string
}

type barRecord struct {
	Time   int64    `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

func NewRedisLastBarStore(client *redis.Client, prefix string) *RedisLastBarStore {
	return &RedisLastBarStore{client: client, prefix: prefix}
}

func (s *RedisLastBarStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisLastBarStore) Get(ctx context.Context, key string) (model.Bar, bool, error) {
	payload, err := s.client.HGet(ctx, s.key(key), fieldBar).Result()
	if errors.Is(err, redis.Nil) {
		return model.Bar{}, false, nil
	}
	if err != nil {
		return model.Bar{}, false, err
	}

	bar, err := decodeBar(payload)
	if err != nil {
		return model.Bar{}, false, err
	}
	return bar, true, nil
}

func (s *RedisLastBarStore) Set(ctx context.Context, key string, bar model.Bar) error {
	payload, err := encodeBar(bar)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key(key), fieldTime, bar.Time, fieldBar, payload).Err()
}

// SetIfNewer 用 WATCH/MULTI 保证比较和写入之间没有其他进程插入
func (s *RedisLastBarStore) SetIfNewer(ctx context.Context, key string, bar model.Bar) (bool, error) {
	payload, err := encodeBar(bar)
	if err != nil {
		return false, err
	}
	k := s.key(key)

	var accepted bool
	txf := func(tx *redis.Tx) error {
		accepted = false

		cur, err := tx.HGet(ctx, k, fieldTime).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && bar.Time < cur {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldTime, bar.Time, fieldBar, payload)
			return nil
		})
		if err == nil {
			accepted = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return accepted, err
	}
	return false, fmt.Errorf("set last bar %s: transaction retries exhausted", key)
}

func encodeBar(b model.Bar) (string, error) {
	raw, err := json.Marshal(barRecord{
		Time:   b.Time,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeBar(payload string) (model.Bar, error) {
	var r barRecord
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return model.Bar{}, fmt.Errorf("decode last bar: %w", err)
	}
	return model.Bar{Time: r.Time, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}, nil
}
