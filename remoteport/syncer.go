package remoteport

import "time"

// syncLoop issues a sync whenever a full quantum passed without any
// synchronization point.
func (s *Session) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	c := s.Channel(s.syncDevice)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.sync.SyncDue() {
				continue
			}

			if err := c.sync(); err != nil {
				s.log.Debug().Err(err).Msg("periodic sync failed")
				return
			}
		}
	}
}
