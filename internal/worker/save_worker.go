package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Crispemo/simulia-session/internal/config"
	"github.com/Crispemo/simulia-session/internal/model"
	"github.com/Crispemo/simulia-session/internal/repository"
)

// SaveWorker consumes the session persistence queue and flushes progress
// snapshots to PostgreSQL.
type SaveWorker struct {
	sessionRepo *repository.SessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSaveWorker creates a new SaveWorker.
func NewSaveWorker(sessionRepo *repository.SessionRepository, rdb *redis.Client, log zerolog.Logger) *SaveWorker {
	return &SaveWorker{
		sessionRepo: sessionRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "save_worker").Logger(),
	}
}

type savePayload struct {
	SessionID string                    `json:"session_id"`
	UserID    int                       `json:"user_id"`
	Envelope  model.SaveProgressRequest `json:"envelope"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistSessionsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload savePayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persist(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Str("session_id", payload.SessionID).
			Int("user_id", payload.UserID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistSessionsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *SaveWorker) persist(ctx context.Context, p *savePayload) error {
	id, err := uuid.Parse(p.SessionID)
	if err != nil {
		return err
	}

	req := &p.Envelope
	doubt := req.DoubtFlags
	if len(doubt) == 0 {
		doubt = json.RawMessage(`{}`)
	}

	rec := &model.SessionRecord{
		ID:           id,
		UserID:       p.UserID,
		ExamKind:     req.ExamKind,
		Questions:    req.Questions,
		Answers:      req.Answers,
		DoubtFlags:   doubt,
		TimeLeft:     req.TimeLeftSeconds,
		TotalTime:    req.TotalTimeSeconds,
		CurrentIndex: req.CurrentQuestionIndex,
		Status:       req.Status,
	}

	return w.sessionRepo.Upsert(ctx, rec)
}

// drain processes all remaining items in the queue before shutdown.
func (w *SaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSessionsQueue).Result()
		if err != nil {
			break
		}

		var payload savePayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistSessionsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
