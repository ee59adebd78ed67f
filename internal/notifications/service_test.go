package notifications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/pagination"
)

type stubRepo struct {
	rows      []models.Notification
	createErr error
}

func (s *stubRepo) Create(ctx context.Context, notification *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	s.rows = append(s.rows, *notification)
	return nil
}

func (s *stubRepo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, cursor *pagination.Cursor, limit int) ([]models.Notification, error) {
	var out []models.Notification
	for i := len(s.rows) - 1; i >= 0; i-- {
		row := s.rows[i]
		if row.UserID != userID {
			continue
		}
		if unreadOnly && row.ReadAt != nil {
			continue
		}
		if cursor != nil && !row.CreatedAt.Before(cursor.CreatedAt) {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, at time.Time) (MarkReadResult, error) {
	for i := range s.rows {
		if s.rows[i].ID == notificationID && s.rows[i].UserID == userID {
			if s.rows[i].ReadAt == nil {
				s.rows[i].ReadAt = &at
			}
			return MarkReadResult{Found: true}, nil
		}
	}
	return MarkReadResult{}, nil
}

func (s *stubRepo) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	var updated int64
	for i := range s.rows {
		if s.rows[i].UserID == userID && s.rows[i].ReadAt == nil {
			s.rows[i].ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func seedInbox(repo *stubRepo, userID uuid.UUID, n int) {
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		repo.rows = append(repo.rows, models.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Category:  enums.NotificationBidReceived,
			Body:      fmt.Sprintf("note %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestSendSwallowsRepoErrors(t *testing.T) {
	repo := &stubRepo{createErr: fmt.Errorf("insert failed")}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	// must not panic or surface the failure
	svc.Send(context.Background(), uuid.New(), enums.NotificationBidReceived, "hello")
	assert.Empty(t, repo.rows)
}

func TestSendSkipsEmptyBody(t *testing.T) {
	repo := &stubRepo{}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	svc.Send(context.Background(), uuid.New(), enums.NotificationBidReceived, "")
	assert.Empty(t, repo.rows)
}

func TestListPagesThroughInbox(t *testing.T) {
	repo := &stubRepo{}
	user := uuid.New()
	seedInbox(repo, user, 7)
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	first, err := svc.List(context.Background(), user, false, pagination.Params{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, first.Notifications, 5)
	require.NotEmpty(t, first.NextCursor)
	// newest first
	assert.Equal(t, "note 6", first.Notifications[0].Body)

	second, err := svc.List(context.Background(), user, false, pagination.Params{Limit: 5, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, second.Notifications, 2)
	assert.Empty(t, second.NextCursor)
}

func TestListRejectsBadCursor(t *testing.T) {
	repo := &stubRepo{}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	_, err = svc.List(context.Background(), uuid.New(), false, pagination.Params{Cursor: "not-base64!"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestMarkReadUnknownNotification(t *testing.T) {
	repo := &stubRepo{}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	err = svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestMarkAllReadCountsUpdates(t *testing.T) {
	repo := &stubRepo{}
	user := uuid.New()
	seedInbox(repo, user, 3)
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	count, err := svc.MarkAllRead(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
