package st2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestReadEvents(t *testing.T) {
	body := strings.Join([]string{
		": keepalive",
		"event: st2.announcement__chatops",
		`data: {"payload":`,
		`data: {"message":"hi"}}`,
		"id: 7",
		"",
		"event: st2.announcement__2fa",
		`data: {"payload":{"uuid":"u1"}}`,
		"",
		"data: unnamed",
		"",
	}, "\n")

	var got []Event
	n, err := readEvents(strings.NewReader(body), func(ev Event) { got = append(got, ev) })
	if err != nil || n != 3 {
		t.Fatalf("readEvents = %d, %v", n, err)
	}
	if got[0].Name != "st2.announcement__chatops" || got[0].ID != "7" ||
		got[0].Data != "{\"payload\":\n{\"message\":\"hi\"}}" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Name != "st2.announcement__2fa" {
		t.Errorf("event 1 = %+v", got[1])
	}
	if got[2].Name != "message" || got[2].Data != "unnamed" {
		t.Errorf("event 2 = %+v", got[2])
	}
}

func TestListenReconnectsThenFails(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stream" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		if conns.Add(1) == 1 {
			fmt.Fprint(w, "event: st2.announcement__chatops\ndata: {}\n\n")
		}
	}))
	defer srv.Close()

	c := NewClient(Options{APIURL: srv.URL, StreamURL: srv.URL})
	var events atomic.Int32
	err := c.Listen(context.Background(), StreamOptions{MaxReconnects: 1, ReconnectDelay: time.Millisecond},
		func(Event) { events.Add(1) })

	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
	if events.Load() != 1 || conns.Load() != 2 {
		t.Errorf("events=%d conns=%d", events.Load(), conns.Load())
	}
}

func TestListenConnectErrorIsImmediate(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Options{APIURL: srv.URL, StreamURL: srv.URL})
	err := c.Listen(context.Background(), StreamOptions{MaxReconnects: 5}, func(Event) {})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
	if conns.Load() != 1 {
		t.Errorf("conns = %d, want 1", conns.Load())
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(Options{APIURL: srv.URL, StreamURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Listen(ctx, StreamOptions{}, func(Event) {}); err != nil {
		t.Fatalf("err = %v, want nil on cancel", err)
	}
}
