package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrSelfFriendship is returned by the create hook when both ends are the same account.
var ErrSelfFriendship = errors.New("model: friendship requester and receiver are the same account")

// Friendship is a directed friend-request edge. Accepted=false means the
// request is pending; Accepted=true means the two accounts are friends.
//
// PairLow/PairHigh hold the unordered pair and carry a unique index, so at
// most one edge can exist between two accounts regardless of direction.
type Friendship struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID int64     `gorm:"index:idx_friendship_requester;not null" json:"requesterId"`
	ReceiverID  int64     `gorm:"index:idx_friendship_receiver;not null" json:"receiverId"`
	Accepted    bool      `gorm:"default:false;not null" json:"accepted"`
	PairLow     int64     `gorm:"uniqueIndex:idx_friendship_pair,priority:1;not null" json:"-"`
	PairHigh    int64     `gorm:"uniqueIndex:idx_friendship_pair,priority:2;not null" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BeforeCreate fills the unordered pair columns.
func (f *Friendship) BeforeCreate(_ *gorm.DB) error {
	if f.RequesterID == f.ReceiverID {
		return ErrSelfFriendship
	}
	f.PairLow, f.PairHigh = f.RequesterID, f.ReceiverID
	if f.PairLow > f.PairHigh {
		f.PairLow, f.PairHigh = f.PairHigh, f.PairLow
	}
	return nil
}
