package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

const defaultRedisPrefix = "avachat"

// RedisStore persists chat history in Redis as one JSON document per
// session plus a per-agent index set. Suitable for deployments where
// history must outlive the process.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL expires sessions after the given duration. Zero keeps them
// forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore builds a Redis-backed chat history store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) sessionKey(agent types.AgentName, id string) string {
	return fmt.Sprintf("%s:chat:%s:%s", s.prefix, agent, id)
}

func (s *RedisStore) indexKey(agent types.AgentName) string {
	return fmt.Sprintf("%s:chats:%s", s.prefix, agent)
}

func (s *RedisStore) save(ctx context.Context, agent types.AgentName, sess types.ChatSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(agent, sess.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(agent), sess.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(agent), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Create registers a new session.
func (s *RedisStore) Create(ctx context.Context, agent types.AgentName, session types.ChatSession) error {
	if session.ID == "" {
		return ErrInvalidID
	}
	return s.save(ctx, agent, session)
}

// Get returns one session.
func (s *RedisStore) Get(ctx context.Context, agent types.AgentName, id string) (types.ChatSession, error) {
	if id == "" {
		return types.ChatSession{}, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.sessionKey(agent, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.ChatSession{}, ErrNotFound
		}
		return types.ChatSession{}, fmt.Errorf("redis get: %w", err)
	}
	var sess types.ChatSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return types.ChatSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

// List returns an agent's sessions, newest first. Index entries whose
// documents have expired are skipped.
func (s *RedisStore) List(ctx context.Context, agent types.AgentName) ([]types.ChatSession, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(agent)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	out := make([]types.ChatSession, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, agent, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AppendPair appends one completed turn. The read-modify-write runs
// against a single document, and the live engine is the session's
// only writer.
func (s *RedisStore) AppendPair(ctx context.Context, agent types.AgentName, id string, user, ai types.Message) error {
	sess, err := s.Get(ctx, agent, id)
	if err != nil {
		return err
	}
	applyPair(&sess, user, ai)
	return s.save(ctx, agent, sess)
}

// Delete removes a session and its index entry.
func (s *RedisStore) Delete(ctx context.Context, agent types.AgentName, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.sessionKey(agent, id))
	pipe.SRem(ctx, s.indexKey(agent), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
