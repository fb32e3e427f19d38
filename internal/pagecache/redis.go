/*
 * Copyright (c) 2019 OysterPack, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pagecache

import (
	"context"
	"encoding/json"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// DefaultRedisKeyPrefix namespaces the page cache keys
const DefaultRedisKeyPrefix = "ecoshop:page:"

// redisScanCount is the SCAN page size
const redisScanCount = 100

// RedisStore stores entries as JSON in redis, using the entry TTL as the key expiration
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and pings it
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis: %s", addr)
	}
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client, prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis GET failed")
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(err, "invalid cache entry")
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache entry")
	}
	return errors.Wrap(s.client.Set(ctx, s.prefix+key, data, entry.TTL()).Err(), "redis SET failed")
}

// DeletePaths matches keys with the pattern: {prefix}* {path}?*
func (s *RedisStore) DeletePaths(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := s.deleteMatching(ctx, escapePath(s.prefix)+"* "+escapePath(path)+`\?*`); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Purge(ctx context.Context) error {
	return s.deleteMatching(ctx, escapePath(s.prefix)+"*")
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, redisScanCount).Result()
		if err != nil {
			return errors.Wrap(err, "redis SCAN failed")
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "redis DEL failed")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks the redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "redis ping failed")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
