package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/db"
	"github.com/kasuganosora/friendhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrAlreadyExists    = errors.New("friendship already exists")
	ErrNotFound         = errors.New("not found")

	errUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	errRequestNotFound = fmt.Errorf("friend request %w", ErrNotFound)
)

// Service implements the friend-request workflow:
//
//	none ──request──▶ pending ──accept──▶ accepted
//	                     │
//	                     └──decline──▶ none
//
// At most one edge exists per unordered pair of accounts. The store enforces
// it through the friendships pair index.
type Service struct {
	db     *gorm.DB
	events Publisher
	audit  audit.Recorder
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the workflow. Nil pub and rec disable events and auditing.
func NewService(gdb *gorm.DB, pub Publisher, rec audit.Recorder, logger *zap.Logger) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{db: gdb, events: pub, audit: rec, logger: logger, now: time.Now}
}

// AddFriendRequest creates a pending edge from requester to receiver.
func (s *Service) AddFriendRequest(ctx context.Context, requesterID, receiverID int64) error {
	if requesterID == receiverID {
		return ErrInvalidOperation
	}
	tx := s.db.WithContext(ctx)

	var n int64
	if err := tx.Model(&model.Account{}).Where("id = ?", receiverID).Count(&n).Error; err != nil {
		return fmt.Errorf("social: find receiver: %w", err)
	}
	if n == 0 {
		return errUserNotFound
	}

	low, high := requesterID, receiverID
	if low > high {
		low, high = high, low
	}
	if err := tx.Model(&model.Friendship{}).
		Where("pair_low = ? AND pair_high = ?", low, high).
		Count(&n).Error; err != nil {
		return fmt.Errorf("social: check pair: %w", err)
	}
	if n > 0 {
		return ErrAlreadyExists
	}

	edge := &model.Friendship{RequesterID: requesterID, ReceiverID: receiverID}
	if err := tx.Create(edge).Error; err != nil {
		// Lost a race with a concurrent request on the same pair.
		if db.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("social: create request: %w", err)
	}

	s.notify(ctx, EventFriendRequest, audit.ActionFriendRequest, requesterID, receiverID)
	return nil
}

// GetFriendRequests lists the requesters of pending edges addressed to userID.
func (s *Service) GetFriendRequests(ctx context.Context, userID int64) ([]model.Profile, error) {
	profiles := []model.Profile{}
	err := s.db.WithContext(ctx).
		Model(&model.Account{}).
		Select(model.ProfileColumns).
		Joins("JOIN friendships ON friendships.requester_id = accounts.id").
		Where("friendships.receiver_id = ? AND friendships.accepted = ?", userID, false).
		Order("friendships.id").
		Scan(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("social: list requests: %w", err)
	}
	return profiles, nil
}

// AcceptFriendRequest turns the pending edge requester→receiver into a friendship.
func (s *Service) AcceptFriendRequest(ctx context.Context, receiverID, requesterID int64) error {
	if receiverID == requesterID {
		return ErrInvalidOperation
	}
	res := s.db.WithContext(ctx).
		Model(&model.Friendship{}).
		Where("requester_id = ? AND receiver_id = ? AND accepted = ?", requesterID, receiverID, false).
		Update("accepted", true)
	if res.Error != nil {
		return fmt.Errorf("social: accept request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errRequestNotFound
	}

	s.notify(ctx, EventFriendAccept, audit.ActionFriendAccept, receiverID, requesterID)
	return nil
}

// DeclineFriendRequest removes the pending edge requester→receiver.
func (s *Service) DeclineFriendRequest(ctx context.Context, receiverID, requesterID int64) error {
	if receiverID == requesterID {
		return ErrInvalidOperation
	}
	res := s.db.WithContext(ctx).
		Where("requester_id = ? AND receiver_id = ? AND accepted = ?", requesterID, receiverID, false).
		Delete(&model.Friendship{})
	if res.Error != nil {
		return fmt.Errorf("social: decline request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errRequestNotFound
	}

	s.notify(ctx, EventFriendDecline, audit.ActionFriendDecline, receiverID, requesterID)
	return nil
}

// GetAllFriends pages through the accounts sharing an accepted edge with userID.
func (s *Service) GetAllFriends(ctx context.Context, userID int64, page model.Page) (*model.PageResult, error) {
	friends := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&model.Account{}).
			Joins("JOIN friendships ON friendships.accepted = ? AND "+
				"((friendships.requester_id = ? AND friendships.receiver_id = accounts.id) OR "+
				"(friendships.receiver_id = ? AND friendships.requester_id = accounts.id))",
				true, userID, userID)
	}

	var total int64
	if err := friends().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("social: count friends: %w", err)
	}

	users := []model.Profile{}
	err := friends().
		Select(model.ProfileColumns).
		Order("accounts.id").
		Offset(page.Offset()).
		Limit(page.Limit).
		Scan(&users).Error
	if err != nil {
		return nil, fmt.Errorf("social: list friends: %w", err)
	}
	return &model.PageResult{Users: users, Pages: model.PageCount(total, page.Limit)}, nil
}

// notify publishes the event to the counterpart and records the action.
// Neither failure affects the already committed transition.
func (s *Service) notify(ctx context.Context, eventType, action string, actorID, counterpartID int64) {
	ev := Event{Type: eventType, From: actorID, To: counterpartID, At: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("friendship event not published",
			zap.String("type", eventType),
			zap.Int64("from", actorID),
			zap.Int64("to", counterpartID),
			zap.Error(err))
	}
	s.audit.Log(ctx, audit.Entry{AccountID: &actorID, TargetID: &counterpartID, Action: action})
}
