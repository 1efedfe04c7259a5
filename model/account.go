package model

import "time"

// Account is a registered user. Email and PasswordHash are fixed after signup.
type Account struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	FirstName    string    `gorm:"size:64;not null;index:idx_account_first_name" json:"firstName"`
	LastName     string    `gorm:"size:64;not null;index:idx_account_last_name" json:"lastName"`
	Age          int       `gorm:"default:0" json:"age"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Profile is the public projection of an Account used in listings.
type Profile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Age       int    `json:"age"`
}

// ProfileColumns selects the Profile projection from the accounts table.
var ProfileColumns = []string{"accounts.id", "accounts.first_name", "accounts.last_name", "accounts.age"}
