package st2

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Event is one server-sent event from the stream.
type Event struct {
	Name string
	ID   string
	Data string
}

// StreamOptions controls reconnect behavior.
type StreamOptions struct {
	// MaxReconnects bounds attempts to reopen a dropped stream. The count
	// resets once a reopened stream delivers an event.
	MaxReconnects  int
	ReconnectDelay time.Duration
}

// ErrStreamClosed is wrapped in the error returned once reconnects are exhausted.
var ErrStreamClosed = errors.New("event stream closed")

// Listen subscribes to the event stream and calls handle for each event
// until ctx is done (returns nil) or the stream fails. A connect error is
// returned immediately; a dropped connection is reopened up to
// MaxReconnects times.
func (c *Client) Listen(ctx context.Context, opts StreamOptions, handle func(Event)) error {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	attempts := 0
	for {
		body, err := c.openStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connect to stream: %w", err)
		}
		slog.Info("st2 stream connected", "url", c.streamBase)

		delivered, readErr := readEvents(body, handle)
		body.Close()

		if ctx.Err() != nil {
			return nil
		}
		if delivered > 0 {
			attempts = 0
		}

		attempts++
		if attempts > opts.MaxReconnects {
			if readErr == nil {
				readErr = io.EOF
			}
			return fmt.Errorf("%w after %d reconnects: %v", ErrStreamClosed, opts.MaxReconnects, readErr)
		}
		slog.Warn("st2 stream dropped, reconnecting", "attempt", attempts, "max", opts.MaxReconnects, "error", readErr)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay * time.Duration(attempts)):
		}
	}
}

func (c *Client) openStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamBase+"/v1/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{
			Status:    resp.StatusCode,
			Message:   parseErrorBody(body),
			RequestID: resp.Header.Get(headerRequestID),
		}
	}
	return resp.Body, nil
}

// readEvents parses an SSE body, calling handle per dispatched event. It
// returns the number of events delivered and the read error, nil on clean EOF.
func readEvents(r io.Reader, handle func(Event)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		ev        Event
		data      []string
		delivered int
	)
	dispatch := func() {
		if len(data) == 0 && ev.Name == "" {
			return
		}
		ev.Data = strings.Join(data, "\n")
		if ev.Name == "" {
			ev.Name = "message"
		}
		handle(ev)
		delivered++
		ev, data = Event{}, nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			dispatch()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		}
	}
	return delivered, scanner.Err()
}
