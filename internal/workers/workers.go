package workers

import (
	"context"
	"log"
	"time"

	"learnquestAPI/services"
)

// RotationWorker keeps the challenge lifecycle moving without external cron:
// once the local day changes it expires yesterday's challenges, generates
// today's set and assigns it to every active user. The same operations stay
// reachable over the cron-secret HTTP endpoints; every step is idempotent so
// the worker and an external cron can overlap safely.
type RotationWorker struct {
	challenges *services.DailyChallengeService
	interval   time.Duration
	stopChan   chan struct{}
}

func NewRotationWorker(challenges *services.DailyChallengeService, interval time.Duration) *RotationWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RotationWorker{
		challenges: challenges,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

func (w *RotationWorker) Start() {
	go w.run()
}

func (w *RotationWorker) Stop() {
	close(w.stopChan)
}

func (w *RotationWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	lastDay := ""
	for {
		select {
		case <-ticker.C:
			day := time.Now().Format("2006-01-02")
			if day == lastDay {
				continue
			}
			w.rotate()
			lastDay = day
		case <-w.stopChan:
			return
		}
	}
}

func (w *RotationWorker) rotate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Println("Rotation worker: starting daily challenge rotation...")

	if err := w.challenges.ResetExpiredChallenges(ctx); err != nil {
		log.Printf("Rotation worker: failed to reset expired challenges: %v", err)
	}

	if _, err := w.challenges.GenerateChallenges(ctx, time.Now(), nil); err != nil {
		log.Printf("Rotation worker: failed to generate today's challenges: %v", err)
		return
	}

	success, failed, err := w.challenges.AutoAssignDailyChallengesToAllUsers(ctx)
	if err != nil {
		log.Printf("Rotation worker: auto-assign failed: %v", err)
		return
	}

	log.Printf("Rotation worker: rotation done (%d assigned, %d failed)", success, failed)
}
