package composer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPollWait = 5 * time.Second
	retryBackoff    = 5 * time.Second
)

// Dequeuer - 큐에서 generation id 하나를 꺼냄 (redis.Queue 구현)
type Dequeuer interface {
	Dequeue(ctx context.Context, wait time.Duration) (string, error)
}

// Processor - generation 하나 처리 (*Service 구현)
type Processor interface {
	Process(ctx context.Context, generationID string) error
}

// Worker pulls generation ids off the queue and processes them with bounded
// concurrency.
type Worker struct {
	queue       Dequeuer
	processor   Processor
	concurrency int
	pollWait    time.Duration
}

// NewWorker - concurrency는 최소 1
func NewWorker(queue Dequeuer, processor Processor, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		processor:   processor,
		concurrency: concurrency,
		pollWait:    DefaultPollWait,
	}
}

// Run - ctx 종료까지 큐 감시. 종료 시 진행 중인 작업이 끝날 때까지 대기.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Int("concurrency", w.concurrency).Msg("🔄 Generation worker starting")

	slots := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		log.Info().Msg("👋 Generation worker stopped")
	}()

	// 진행 중인 작업은 종료 신호와 무관하게 끝까지 처리
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		generationID, err := w.queue.Dequeue(ctx, w.pollWait)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("❌ Queue read failed")
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if generationID == "" {
			<-slots
			continue
		}

		log.Info().Str("generation_id", generationID).Msg("🎯 Received generation")

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			w.process(jobCtx, generationID)
		}()
	}
}

func (w *Worker) process(ctx context.Context, generationID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("generation_id", generationID).Msg("💥 Generation panicked")
		}
	}()

	if err := w.processor.Process(ctx, generationID); err != nil {
		log.Error().Err(err).Str("generation_id", generationID).Msg("❌ Generation processing failed")
	}
}
