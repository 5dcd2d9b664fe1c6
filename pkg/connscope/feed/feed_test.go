package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connscope/connscope/pkg/connscope/metrics"
	"github.com/connscope/connscope/pkg/connscope/reconcile"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func serverAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestClientWebsocketDeliversSnapshots(t *testing.T) {
	assert := assert.New(t)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer hunter2", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(Update{
			UploadTotal: 100,
			Connections: []reconcile.Conn{{ID: "a", Upload: 10, Download: 5}},
		}))
		// Controllers may null out the connections field entirely.
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"uploadTotal":200,"downloadTotal":50,"connections":null}`)))
	}))
	defer srv.Close()

	mock := metrics.NewMockMetricsClient()
	c := NewClient(Config{
		Addr:          serverAddr(srv),
		Secret:        "hunter2",
		RetryDelay:    10 * time.Millisecond,
		MaxRetries:    1,
		MetricsClient: mock,
		Log:           testLogger(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	first := <-c.Updates()
	assert.Equal(int64(100), first.UploadTotal)
	require.Len(t, first.Connections, 1)
	assert.Equal("a", first.Connections[0].ID)

	second := <-c.Updates()
	assert.Equal(int64(200), second.UploadTotal)
	assert.Empty(second.Connections)

	// The server hangs up after two snapshots; with a single-attempt
	// retry budget the client gives up.
	assert.Error(<-errCh)

	count, err := mock.GetCount("feed.snapshot.received", nil)
	assert.NoError(err)
	assert.Equal(uint64(2), count)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websocket here", http.StatusBadGateway)
	}))
	defer srv.Close()

	mock := metrics.NewMockMetricsClient()
	c := NewClient(Config{
		Addr:          serverAddr(srv),
		RetryDelay:    time.Millisecond,
		MaxRetries:    3,
		MetricsClient: mock,
		Log:           testLogger(),
	})

	err := c.Run(context.Background())
	assert.Error(err)
	assert.Contains(err.Error(), "3 consecutive failures")

	count, err := mock.GetCount("feed.connect.atpt.total", map[string]string{"success": "false"})
	assert.NoError(err)
	assert.Equal(uint64(3), count)

	// Two retry pauses happen before the third failure exhausts the budget.
	count, err = mock.GetCount("feed.reconnect", nil)
	assert.NoError(err)
	assert.Equal(uint64(2), count)
}

func TestClientPollMode(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/connections", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"uploadTotal":7,"downloadTotal":3,"connections":[{"id":"x","upload":1,"download":2,"start":"2023-05-01T10:00:00Z","metadata":{"host":"example.com"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Addr:         serverAddr(srv),
		Poll:         true,
		PollInterval: 5 * time.Millisecond,
		Log:          testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	update := <-c.Updates()
	require.Len(t, update.Connections, 1)
	assert.Equal("x", update.Connections[0].ID)
	assert.Equal("example.com", update.Connections[0].Metadata.Host)

	// A second poll arrives on the next tick.
	update = <-c.Updates()
	assert.Equal(int64(7), update.UploadTotal)

	cancel()
	assert.ErrorIs(<-errCh, context.Canceled)
}

func TestClientPollModeBadStatus(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Addr:       serverAddr(srv),
		Poll:       true,
		RetryDelay: time.Millisecond,
		MaxRetries: 1,
		Log:        testLogger(),
	})

	err := c.Run(context.Background())
	assert.Error(err)
	assert.Contains(err.Error(), "401")
}

func TestClientStopsOnCancel(t *testing.T) {
	assert := assert.New(t)

	upgrader := websocket.Upgrader{}
	connected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		close(connected)
		// Hold the subscription open; the client side tears it down.
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewClient(Config{
		Addr:       serverAddr(srv),
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
		Log:        testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	<-connected
	cancel()

	assert.ErrorIs(<-errCh, context.Canceled)

	// The updates channel closes once the run loop exits.
	_, open := <-c.Updates()
	assert.False(open)
}
