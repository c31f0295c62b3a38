package multiplayer

import (
	"sync"
	"time"
)

// retryTimer fires reconnect ticks into the event loop until stopped.
// The client keeps at most one armed timer at a time.
type retryTimer struct {
	stopCh chan struct{}
	once   sync.Once
}

// armRetry starts the reconnect timer unless one is already armed.
// Must be called from the event loop.
func (c *Client) armRetry() {
	if c.retry != nil || c.ctx.Err() != nil {
		return
	}

	t := &retryTimer{stopCh: make(chan struct{})}
	c.retry = t
	c.armedTimers.Add(1)
	c.timersStarted.Add(1)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.ReconnectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-t.stopCh:
				return
			case <-ticker.C:
				c.post(reconnectTick{timer: t})
			}
		}
	}()
}

// disarmRetry stops the armed timer. Ticks it already queued are ignored by onTick.
func (c *Client) disarmRetry() {
	if c.retry == nil {
		return
	}
	t := c.retry
	c.retry = nil
	t.once.Do(func() {
		close(t.stopCh)
		c.armedTimers.Add(-1)
	})
}

func (c *Client) onTick(t *retryTimer) {
	if t != c.retry {
		return
	}
	if c.state != StateDisconnected {
		c.logger.Debug("Reconnect tick skipped, attempt in progress", "state", c.state)
		return
	}
	if limit := c.cfg.MaxReconnectAttempts; limit > 0 && c.attempts >= limit {
		c.logger.Warn("Giving up on hub, staying in local mode", "attempts", c.attempts)
		c.disarmRetry()
		return
	}

	c.attempts++
	c.logger.Info("Attempting reconnect", "attempt", c.attempts, "url", c.cfg.URL)
	c.connect()
}
