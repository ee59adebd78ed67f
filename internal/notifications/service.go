package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
	"github.com/ksmithweb/campusmarket-backend/pkg/pagination"
)

// Sink accepts fire-and-forget user-facing messages. Callers never observe
// delivery failures; the implementation logs and swallows them. Implementations
// must not be invoked while holding locks taken for settlement or acceptance.
type Sink interface {
	Send(ctx context.Context, userID uuid.UUID, category enums.NotificationCategory, body string)
}

// ListPage is one page of a user's inbox ordered newest first.
type ListPage struct {
	Notifications []models.Notification `json:"notifications"`
	NextCursor    string                `json:"next_cursor,omitempty"`
}

// Service defines notification inbox operations plus the sink.
type Service interface {
	Sink
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page pagination.Params) (*ListPage, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires notifications dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Send(ctx context.Context, userID uuid.UUID, category enums.NotificationCategory, body string) {
	if userID == uuid.Nil || body == "" {
		return
	}
	notification := &models.Notification{
		UserID:   userID,
		Category: category,
		Body:     body,
	}
	if err := s.repo.Create(ctx, notification); err != nil && s.logg != nil {
		s.logg.Error(ctx, "notification dropped", err)
	}
}

func (s *service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page pagination.Params) (*ListPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(page.Limit)
	rows, err := s.repo.ListByUser(ctx, userID, unreadOnly, cursor, pagination.LimitWithBuffer(page.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	result := &ListPage{Notifications: rows}
	if len(rows) > limit {
		result.Notifications = rows[:limit]
		last := result.Notifications[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
