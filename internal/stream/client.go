package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/starglobe/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes SSE messages to one connection.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	sent  int64
	bytes int64
}

// sendJSON writes v as a "data:" message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.write(fmt.Sprintf("data: %s\n\n", data), true)
}

// sendKeepalive writes an SSE comment.
func (c *client) sendKeepalive() error {
	return c.write(":\n\n", false)
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(d time.Duration) error {
	return c.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()), false)
}

func (c *client) write(msg string, counted bool) error {
	// Long-lived connections outlive the server's WriteTimeout, so the
	// deadline is pushed out before every write.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, msg)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()

	c.bytes += int64(n)
	metrics.AddStreamBytes(int64(n))
	if counted {
		c.sent++
		metrics.IncStreamMessages()
	}
	return nil
}
