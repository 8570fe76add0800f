package engine

import (
	"context"
	"time"
)

const expiryFinalizeTimeout = 30 * time.Second

// startTimer runs on Load, before the loop starts.
func (s *Session) startTimer() {
	t := s.clock.NewTicker(time.Second)
	stop := make(chan struct{})
	s.ticker = t
	s.timerStop = stop

	go func() {
		for {
			select {
			case <-t.C():
				select {
				case s.cmds <- s.tick:
				case <-stop:
					return
				case <-s.done:
					return
				}
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()
}

// stopTimer runs on the loop. It is a no-op once the timer is stopped.
func (s *Session) stopTimer() {
	if s.timerStop == nil {
		return
	}
	close(s.timerStop)
	s.ticker.Stop()
	s.timerStop = nil
}

// tick runs on the loop once per second while the timer is live.
func (s *Session) tick() {
	if s.timerStop == nil || s.deadline || s.result != nil || s.fault != nil {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	s.emit(Event{Type: EventTick, Remaining: s.remaining})
	if s.remaining > 0 {
		return
	}

	s.deadline = true
	s.stopTimer()
	s.log.Info().Msg("Time limit reached, finalizing")

	ctx, cancel := context.WithTimeout(context.Background(), expiryFinalizeTimeout)
	defer cancel()
	if _, err := s.finalize(ctx, ReasonTimerExpired); err != nil {
		s.log.Error().Err(err).Msg("Forced finalization failed")
	}
}
