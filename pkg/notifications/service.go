package notifications

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/sendemail"
	"neuralsalvage/pkg/users"
)

var (
	ErrInvalidNotification = errors.New("notification needs a user and a title")
	errUnknownEvent        = errors.New("unknown event_type")
)

type UserReader interface {
	GetUserByUUID(ctx context.Context, uuid string) (users.User, error)
}

type NotificationService interface {
	Notify(ctx context.Context, n Notification) (Notification, error)
	List(ctx context.Context, userUUID string, unreadOnly bool, page, limit int) ([]Notification, int64, error)
	MarkRead(ctx context.Context, userUUID string, ids []int64) (int64, error)
	MarkAllRead(ctx context.Context, userUUID string) (int64, error)
	UnreadCount(ctx context.Context, userUUID string) (int64, error)
}

type notificationService struct {
	repo      NotificationRepository
	hub       *Hub
	users     UserReader
	email     sendemail.EmailService
	publicURL string
	log       *zap.Logger
}

// NewNotificationService persists notifications and fans them out to the hub
// and, for emailed kinds, to email. email and users may be nil.
func NewNotificationService(repo NotificationRepository, hub *Hub, users UserReader, email sendemail.EmailService, publicURL string, log *zap.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		hub:       hub,
		users:     users,
		email:     email,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
	}
}

func (s *notificationService) Notify(ctx context.Context, n Notification) (Notification, error) {
	n.Title = strings.TrimSpace(n.Title)
	if n.UserUUID == "" || n.Title == "" {
		return Notification{}, ErrInvalidNotification
	}

	saved, err := s.repo.Create(ctx, n)
	if err != nil {
		return Notification{}, err
	}

	if s.hub.IsOnline(saved.UserUUID) {
		if err := s.hub.Push(saved.UserUUID, Event{EventType: "notification", Notification: &saved}); err != nil {
			s.log.Debug("push notification", zap.String("user_uuid", saved.UserUUID), zap.Error(err))
		}
	}

	if emailed[saved.Kind] && s.email != nil && s.users != nil {
		s.sendEmail(ctx, saved)
	}
	return saved, nil
}

func (s *notificationService) sendEmail(ctx context.Context, n Notification) {
	u, err := s.users.GetUserByUUID(ctx, n.UserUUID)
	if err != nil {
		s.log.Warn("notification email recipient", zap.String("user_uuid", n.UserUUID), zap.Error(err))
		return
	}
	link := n.Link
	if strings.HasPrefix(link, "/") {
		link = s.publicURL + link
	}
	if err := sendemail.Send(s.email, u.Email, sendemail.NotificationMessage(n.Title, n.Body, link)); err != nil {
		s.log.Warn("send notification email", zap.Int64("notification_id", n.ID), zap.Error(err))
	}
}

func (s *notificationService) List(ctx context.Context, userUUID string, unreadOnly bool, page, limit int) ([]Notification, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.repo.ListByUser(ctx, userUUID, unreadOnly, limit, offset)
}

func (s *notificationService) MarkRead(ctx context.Context, userUUID string, ids []int64) (int64, error) {
	n, err := s.repo.MarkRead(ctx, userUUID, ids)
	if err != nil {
		return 0, err
	}
	s.pushUnread(ctx, userUUID)
	return n, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUUID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userUUID)
	if err != nil {
		return 0, err
	}
	s.pushUnread(ctx, userUUID)
	return n, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userUUID string) (int64, error) {
	return s.repo.UnreadCount(ctx, userUUID)
}

// pushUnread keeps other views of the same user in sync after a read.
func (s *notificationService) pushUnread(ctx context.Context, userUUID string) {
	if !s.hub.IsOnline(userUUID) {
		return
	}
	count, err := s.repo.UnreadCount(ctx, userUUID)
	if err != nil {
		s.log.Warn("unread count", zap.String("user_uuid", userUUID), zap.Error(err))
		return
	}
	_ = s.hub.Push(userUUID, Event{EventType: "unread", Unread: &count})
}
