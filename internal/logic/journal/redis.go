package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"registry-client-sol/pkg/logger"
)

// RedisJournal 管理 Redis 中的 envelope 状态记录（多进程共享的幂等控制）
type RedisJournal struct {
	rdb    *redis.Client
	prefix string
}

// Redis key 后缀
const (
	intentSuffix   = "intent"
	envelopeSuffix = "envelope" // hash: state / blockhash
	pendingSuffix  = "pending"
)

// envelope hash 字段
const (
	fieldState     = "state"
	fieldBlockhash = "blockhash"
)

// 每类状态的 TTL（可调）
const (
	intentTTL    = 7 * 24 * time.Hour
	committedTTL = 7 * 24 * time.Hour
	rejectedTTL  = 24 * time.Hour
	defaultTTL   = 3 * 24 * time.Hour
)

// NewRedisJournal prefix 为空时使用 "registry"
func NewRedisJournal(rdb *redis.Client, prefix string) *RedisJournal {
	if prefix == "" {
		prefix = "registry"
	}
	return &RedisJournal{rdb: rdb, prefix: prefix}
}

func (r *RedisJournal) intentKey(intent string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, intentSuffix, intent)
}

func (r *RedisJournal) envelopeKey(signature string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, envelopeSuffix, signature)
}

func (r *RedisJournal) pendingKey() string {
	return fmt.Sprintf("%s:%s", r.prefix, pendingSuffix)
}

// getTTL 按状态区分 TTL
func (r *RedisJournal) getTTL(state State) time.Duration {
	switch state {
	case StateCommitted:
		return committedTTL
	case StateRejected, StateExpired:
		return rejectedTTL
	default:
		return defaultTTL
	}
}

func (r *RedisJournal) Claim(ctx context.Context, intentKey, signature string) (string, error) {
	key := r.intentKey(intentKey)
	ok, err := r.rdb.SetNX(ctx, key, signature, intentTTL).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx error: %w", err)
	}
	if ok {
		return signature, nil
	}

	holder, err := r.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// 刚好过期，重新抢占
		if err := r.rdb.Set(ctx, key, signature, intentTTL).Err(); err != nil {
			return "", fmt.Errorf("redis set error: %w", err)
		}
		return signature, nil
	case err != nil:
		return "", fmt.Errorf("redis get error: %w", err)
	case holder == signature:
		return signature, nil
	}

	state, err := r.State(ctx, holder)
	if err != nil {
		return "", err
	}
	if !state.Replaceable() {
		return holder, nil
	}

	// 原 envelope 已失败或已过期，允许新的 envelope 接管该意图
	if err := r.rdb.Set(ctx, key, signature, intentTTL).Err(); err != nil {
		return "", fmt.Errorf("redis set error: %w", err)
	}
	return signature, nil
}

func (r *RedisJournal) Track(ctx context.Context, signature, blockhash string) error {
	key := r.envelopeKey(signature)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldBlockhash, blockhash)
		pipe.Expire(ctx, key, defaultTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis track %s error: %w", signature, err)
	}
	return nil
}

func (r *RedisJournal) Blockhash(ctx context.Context, signature string) (string, error) {
	val, err := r.rdb.HGet(ctx, r.envelopeKey(signature), fieldBlockhash).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("redis hget error: %w", err)
	}
	return val, nil
}

func (r *RedisJournal) MarkState(ctx context.Context, signature string, state State) error {
	key := r.envelopeKey(signature)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldState, int(state))
		pipe.Expire(ctx, key, r.getTTL(state))
		if state.Pending() {
			pipe.SAdd(ctx, r.pendingKey(), signature)
		} else {
			pipe.SRem(ctx, r.pendingKey(), signature)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mark %s=%s error: %w", signature, state, err)
	}
	return nil
}

func (r *RedisJournal) State(ctx context.Context, signature string) (State, error) {
	val, err := r.rdb.HGet(ctx, r.envelopeKey(signature), fieldState).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return StateUnknown, nil
	case err != nil:
		return StateUnknown, fmt.Errorf("redis get error: %w", err)
	}

	st := State(val)
	if st < StateUnknown || st > StateExpired {
		return StateUnknown, nil // 容错处理
	}
	return st, nil
}

// Pending envelope 记录已过期（TTL 到期）的成员会顺带从 pending 集合中移除
func (r *RedisJournal) Pending(ctx context.Context) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, r.pendingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers error: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.IntCmd, len(members))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sig := range members {
			cmds[i] = pipe.Exists(ctx, r.envelopeKey(sig))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis exists error: %w", err)
	}

	out := make([]string, 0, len(members))
	var gone []any
	for i, sig := range members {
		if cmds[i].Val() == 0 {
			gone = append(gone, sig)
			continue
		}
		out = append(out, sig)
	}
	if len(gone) > 0 {
		if err := r.rdb.SRem(ctx, r.pendingKey(), gone...).Err(); err != nil {
			logger.Warnf("[RedisJournal] prune pending failed: count=%d, err=%v", len(gone), err)
		}
	}
	sort.Strings(out)
	return out, nil
}
