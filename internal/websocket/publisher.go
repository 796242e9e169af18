package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher announces leaderboard changes on the group's pub/sub channel
// so connected clients can refresh.
type Publisher struct {
	redisClient *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redisClient: redisClient}
}

func (p *Publisher) PublishLeaderboardUpdated(ctx context.Context, groupID uuid.UUID) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":       "leaderboard_updated",
		"group_id":   groupID,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.redisClient.Publish(ctx, groupChannel(groupID), payload).Err()
}
