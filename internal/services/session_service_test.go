package services

import (
	"testing"
	"time"

	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func backdateSession(t *testing.T, db *gorm.DB, id string, age time.Duration) {
	t.Helper()
	require.NoError(t, db.Model(&models.SearchSession{}).Where("id = ?", id).
		UpdateColumn("updated_at", time.Now().Add(-age)).Error)
}

func TestAcquireSessionCreatesFresh(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	session, resumed, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)

	assert.False(t, resumed)
	assert.Equal(t, models.SearchPending, session.Status)
	assert.Equal(t, 1, session.CurrentPage)
	assert.Equal(t, 30, session.BatchSize)
	assert.NotEmpty(t, session.ID)
}

func TestAcquireSessionBlocksOnLiveSession(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	first, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.MarkInProgress(first.ID))

	_, _, err = svc.AcquireSession("user-1", "golang engineer", 30)
	assert.ErrorIs(t, err, ErrSearchInProgress)
}

func TestAcquireSessionIgnoresOtherUsersSessions(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	_, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)

	_, _, err = svc.AcquireSession("user-2", "golang engineer", 30)
	assert.NoError(t, err)
}

func TestAcquireSessionResumesRecentPausedCursor(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	first, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.RecordBatch(first.ID, 4, 25, 900))
	require.NoError(t, svc.Pause(first.ID))

	session, resumed, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)

	assert.True(t, resumed)
	assert.Equal(t, first.ID, session.ID)
	assert.Equal(t, models.SearchPending, session.Status)
	assert.Equal(t, 4, session.CurrentPage, "cursor survives the pause")
	assert.Equal(t, 25, session.ProcessedCount)
}

func TestAcquireSessionResetsExpiredPausedCursor(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	first, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.RecordBatch(first.ID, 4, 25, 900))
	require.NoError(t, svc.Pause(first.ID))
	backdateSession(t, db, first.ID, 72*time.Hour)

	session, resumed, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)

	assert.True(t, resumed)
	assert.Equal(t, 1, session.CurrentPage, "stale cursor starts over")
	assert.Equal(t, 0, session.ProcessedCount)
}

func TestAcquireSessionIgnoresAbandonedLiveSession(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	first, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.MarkInProgress(first.ID))
	backdateSession(t, db, first.ID, 3*time.Hour)

	session, resumed, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.NotEqual(t, first.ID, session.ID)
}

func TestRecordBatchAccumulatesProcessedCount(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	session, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)

	require.NoError(t, svc.RecordBatch(session.ID, 2, 12, 500))
	require.NoError(t, svc.RecordBatch(session.ID, 3, 8, 500))

	latest, err := svc.Latest("user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.CurrentPage)
	assert.Equal(t, 20, latest.ProcessedCount)
	require.NotNil(t, latest.TotalResults)
	assert.Equal(t, 500, *latest.TotalResults)
}

func TestCompleteStampsCompletedAt(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	session, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(session.ID))

	latest, err := svc.Latest("user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SearchCompleted, latest.Status)
	assert.NotNil(t, latest.CompletedAt)
}

func TestLatestReturnsNilForUnknownUser(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	session, err := svc.Latest("nobody")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestPauseLatestLive(t *testing.T) {
	svc := NewSessionService(newTestDB(t))

	created, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.MarkInProgress(created.ID))

	paused, err := svc.PauseLatestLive("user-1")
	require.NoError(t, err)
	require.NotNil(t, paused)
	assert.Equal(t, created.ID, paused.ID)
	assert.Equal(t, models.SearchPaused, paused.Status)

	again, err := svc.PauseLatestLive("user-1")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestExpireStaleOnlyTouchesOldLiveSessions(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	stale, _, err := svc.AcquireSession("user-1", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.MarkInProgress(stale.ID))
	backdateSession(t, db, stale.ID, 3*time.Hour)

	fresh, _, err := svc.AcquireSession("user-2", "golang engineer", 30)
	require.NoError(t, err)
	require.NoError(t, svc.MarkInProgress(fresh.ID))

	expired, err := svc.ExpireStale()
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	staleSession, err := svc.Latest("user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SearchFailed, staleSession.Status)

	freshSession, err := svc.Latest("user-2")
	require.NoError(t, err)
	assert.Equal(t, models.SearchInProgress, freshSession.Status)
}
