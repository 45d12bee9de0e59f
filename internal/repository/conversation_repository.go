// Package repository is the data access layer: MySQL through gorm and
// per-user conversation records in Redis.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"baria-go/internal/model"
)

const (
	historyLimit = 20
	sessionTTL   = 7 * 24 * time.Hour
)

// ConversationRepository holds each user's conversation state and recent history.
type ConversationRepository interface {
	GetState(ctx context.Context, userID string) (model.SessionState, error)
	SetState(ctx context.Context, userID string, state model.SessionState) error
	GetHistory(ctx context.Context, userID string) ([]model.ChatMessage, error)
	// AppendHistory adds messages and trims the history to the most recent 20.
	AppendHistory(ctx context.Context, userID string, messages ...model.ChatMessage) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func stateKey(userID string) string   { return fmt.Sprintf("baria:user:%s:state", userID) }
func historyKey(userID string) string { return fmt.Sprintf("baria:user:%s:history", userID) }

func (r *redisConversationRepository) GetState(ctx context.Context, userID string) (model.SessionState, error) {
	raw, err := r.redisClient.Get(ctx, stateKey(userID)).Bytes()
	if err == redis.Nil {
		return model.SessionState{State: model.StateIdle}, nil
	}
	if err != nil {
		return model.SessionState{}, fmt.Errorf("failed to get conversation state: %w", err)
	}
	var st model.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return model.SessionState{}, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return st, nil
}

func (r *redisConversationRepository) SetState(ctx context.Context, userID string, state model.SessionState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	if err := r.redisClient.Set(ctx, stateKey(userID), raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation state: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) GetHistory(ctx context.Context, userID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *redisConversationRepository) AppendHistory(ctx context.Context, userID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal chat message: %w", err)
		}
		values = append(values, raw)
	}
	key := historyKey(userID)
	_, err := r.redisClient.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, values...)
		p.LTrim(ctx, key, -historyLimit, -1)
		p.Expire(ctx, key, sessionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}
