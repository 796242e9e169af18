package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studysync-backend/internal/services"
)

const (
	analyticsQueueKey = "queue:analytics-refresh"
	maxAttempts       = 5
)

type analyticsJob struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	Attempts  int       `json:"attempts"`
}

// Queue re-enqueues analytics refreshes that failed inline. Session-state
// loss is never acceptable; analytics staleness until a retry lands is.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisClient *redis.Client) *Queue {
	return &Queue{redis: redisClient}
}

func (q *Queue) EnqueueRefresh(ctx context.Context, userID, sessionID uuid.UUID) error {
	return q.push(ctx, analyticsJob{UserID: userID, SessionID: sessionID})
}

func (q *Queue) push(ctx context.Context, job analyticsJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.RPush(ctx, analyticsQueueKey, payload).Err()
}

// Pool drains the retry queue in the background.
type Pool struct {
	queue       *Queue
	sessions    services.SessionStore
	analytics   services.AnalyticsUpdater
	workerCount int
	stopChan    chan struct{}
}

func NewPool(queue *Queue, sessions services.SessionStore, analytics services.AnalyticsUpdater, workerCount int) *Pool {
	return &Pool{
		queue:       queue,
		sessions:    sessions,
		analytics:   analytics,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d analytics retry workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Analytics worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.queue.redis.BLPop(ctx, 30*time.Second, analyticsQueueKey).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job analyticsJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Analytics worker %d: failed to parse job: %v", id, err)
			continue
		}

		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, id int, job analyticsJob) {
	session, err := p.sessions.FindByID(ctx, job.SessionID)
	if err == nil && session == nil {
		log.Printf("Analytics worker %d: session %s disappeared, dropping job", id, job.SessionID)
		return
	}

	// Retry jobs only apply to sessions that finished; a session that is
	// somehow still open gets its analytics from its own end path.
	if err == nil && !session.Status.IsTerminal() {
		log.Printf("Analytics worker %d: session %s is not terminal, dropping job", id, job.SessionID)
		return
	}

	if err == nil {
		err = p.analytics.RecordCompletedSession(ctx, session)
	}
	if err == nil {
		log.Printf("Analytics worker %d: refreshed analytics for user %s", id, job.UserID)
		return
	}

	job.Attempts++
	if job.Attempts >= maxAttempts {
		log.Printf("Analytics worker %d: giving up on session %s after %d attempts: %v", id, job.SessionID, job.Attempts, err)
		return
	}
	log.Printf("Analytics worker %d: retrying session %s (attempt %d): %v", id, job.SessionID, job.Attempts, err)
	if pushErr := p.queue.push(ctx, job); pushErr != nil {
		log.Printf("Analytics worker %d: failed to re-enqueue session %s: %v", id, job.SessionID, pushErr)
	}
}
