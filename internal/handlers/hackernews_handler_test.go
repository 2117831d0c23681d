package handlers

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/jobseekr/internal/events"
	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/services"
	"github.com/justsurfingit/jobseekr/internal/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSubscribeServer(t *testing.T) (*httptest.Server, *gorm.DB, *events.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerTestDB(t)
	hub := events.NewHub()
	h := NewHackerNewsHandler(services.NewThreadService(db, nil), nil, nil, nil, nil, nil, hub)

	r := gin.New()
	r.GET("/hackernews/threads/:threadId/subscribe", h.Subscribe)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, db, hub
}

// nextEventType reads SSE lines until the next event: field.
func nextEventType(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
}

func TestSubscribeStreamsSnapshotThenLiveEvents(t *testing.T) {
	srv, db, hub := newSubscribeServer(t)
	require.NoError(t, db.Create(&models.Thread{
		ThreadID:             "100",
		Title:                "Ask HN: Who is hiring?",
		ProcessingStatus:     models.ThreadProcessing,
		MaxRequestsPerMinute: models.DefaultMaxRequestsPerMinute,
	}).Error)

	resp, err := http.Get(srv.URL + "/hackernews/threads/100/subscribe")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, "snapshot", nextEventType(t, reader))

	topic := workers.ThreadTopic("100")
	require.Eventually(t, func() bool { return hub.Subscribers(topic) == 1 },
		2*time.Second, 10*time.Millisecond, "stream should be registered on the hub")

	hub.Publish(topic, events.Event{Type: "progress", Data: map[string]any{"processed": 1}})
	assert.Equal(t, "progress", nextEventType(t, reader))

	hub.Publish(topic, events.Event{Type: "completed", Data: map[string]any{"thread_id": "100"}})
	assert.Equal(t, "completed", nextEventType(t, reader))
}

func TestSubscribeUnknownThread(t *testing.T) {
	srv, _, _ := newSubscribeServer(t)

	resp, err := http.Get(srv.URL + "/hackernews/threads/404/subscribe")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
