package game

import (
	"context"
	"log"
	"time"
)

// StartIdleWorker expires sessions nobody has touched for SessionIdleMinutes.
// With Redis it works off the session_idle sorted set so only one node acts on
// each due session; without Redis it sweeps the local sessions.
func StartIdleWorker(ctx context.Context, sm *SessionManager) {
	if sm == nil || sm.config == nil {
		log.Println("[IDLE] Manager or config missing; idle worker not started")
		return
	}

	poll := time.Duration(sm.config.IdleWorkerPollSeconds) * time.Second
	if poll <= 0 {
		poll = 30 * time.Second
	}

	log.Printf("[IDLE] Idle worker started (poll=%s timeout=%s redis=%v)", poll, sm.idleTimeout(), sm.store != nil)
	go func() {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[IDLE] Idle worker stopping")
				return
			case <-ticker.C:
				if sm.store == nil {
					if expired := sm.SweepIdle(sm.idleTimeout()); len(expired) > 0 {
						log.Printf("[IDLE] Expired %d idle session(s)", len(expired))
					}
					continue
				}
				sm.processDueIdle(ctx, time.Now())
			}
		}
	}()
}

// processDueIdle claims due idle checks from Redis and decides each from the
// shared activity time, whichever node hosts the session. Sessions still in
// use are re-armed; the rest are expired here and released on their host
// through the events channel.
func (sm *SessionManager) processDueIdle(ctx context.Context, now time.Time) {
	due, err := sm.store.ClaimDueIdle(ctx, now)
	if err != nil {
		log.Printf("[IDLE] Failed to fetch due sessions: %v", err)
		return
	}

	timeout := sm.idleTimeout()
	for _, id := range due {
		last, err := sm.lastActive(ctx, id)
		if err != nil {
			log.Printf("[IDLE] Failed to read last activity of %s: %v", id, err)
			last = now
		}
		if now.Sub(last) >= timeout {
			sm.Expire(id)
			continue
		}
		if err := sm.store.ScheduleIdleCheck(ctx, id, last.Add(timeout)); err != nil {
			log.Printf("[IDLE] Failed to re-arm idle check for %s: %v", id, err)
		}
	}
}

// lastActive is the later of the shared activity time and the local one. It
// is zero when neither is known.
func (sm *SessionManager) lastActive(ctx context.Context, id string) (time.Time, error) {
	last, _, err := sm.store.LastActive(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if local, ok := sm.LastActivity(id); ok && local.After(last) {
		last = local
	}
	return last, nil
}
