package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/cache"
	"github.com/kasuganosora/friendhub/db"
	"github.com/kasuganosora/friendhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the account does not exist.
var ErrNotFound = errors.New("user not found")

const (
	defaultProfileTTL = time.Minute
	fillStripes       = 64
)

// Filter narrows GetAllUsers. Nil fields are not applied.
type Filter struct {
	FirstName *string // case-sensitive prefix
	LastName  *string // case-sensitive prefix
	Age       *int
}

// Patch lists the editable profile fields. Nil fields are left untouched.
type Patch struct {
	FirstName *string
	LastName  *string
	Age       *int
}

func (p Patch) columns() map[string]any {
	cols := make(map[string]any, 3)
	if p.FirstName != nil {
		cols["first_name"] = *p.FirstName
	}
	if p.LastName != nil {
		cols["last_name"] = *p.LastName
	}
	if p.Age != nil {
		cols["age"] = *p.Age
	}
	return cols
}

// Service answers profile queries and applies self-edits.
type Service struct {
	db         *gorm.DB
	cache      cache.Cache
	profileTTL time.Duration
	audit      audit.Recorder
	logger     *zap.Logger

	// fill serializes cache writes per account so a read that loaded a row
	// before an edit committed cannot overwrite the edited entry.
	fill [fillStripes]sync.Mutex
}

// NewService wires the query service. A nil cache disables profile caching.
func NewService(gdb *gorm.DB, c cache.Cache, profileTTL time.Duration, rec audit.Recorder, logger *zap.Logger) *Service {
	if profileTTL <= 0 {
		profileTTL = defaultProfileTTL
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{db: gdb, cache: c, profileTTL: profileTTL, audit: rec, logger: logger}
}

func (s *Service) fillLock(userID int64) *sync.Mutex {
	return &s.fill[uint64(userID)%fillStripes]
}

func profileKey(id int64) string {
	return "profile:" + strconv.FormatInt(id, 10)
}

// GetAllUsers returns one page of accounts matching every set filter field.
func (s *Service) GetAllUsers(ctx context.Context, page model.Page, f Filter) (*model.PageResult, error) {
	binary := db.IsMySQL(s.db)
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Account{})
		if f.FirstName != nil {
			q = q.Where(prefixClause("accounts.first_name", *f.FirstName, binary), *f.FirstName)
		}
		if f.LastName != nil {
			q = q.Where(prefixClause("accounts.last_name", *f.LastName, binary), *f.LastName)
		}
		if f.Age != nil {
			q = q.Where("accounts.age = ?", *f.Age)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("user: count: %w", err)
	}

	users := []model.Profile{}
	err := query().
		Select(model.ProfileColumns).
		Order("accounts.id").
		Offset(page.Offset()).
		Limit(page.Limit).
		Scan(&users).Error
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	return &model.PageResult{Users: users, Pages: model.PageCount(total, page.Limit)}, nil
}

// prefixClause compares the leading runes of col with the argument.
// Case-sensitive on every dialect; the prefix needs no wildcard escaping.
func prefixClause(col, prefix string, binary bool) string {
	n := utf8.RuneCountInString(prefix)
	if binary {
		return fmt.Sprintf("BINARY SUBSTRING(%s, 1, %d) = ?", col, n)
	}
	return fmt.Sprintf("SUBSTR(%s, 1, %d) = ?", col, n)
}

// GetProfile returns the account, served from the profile cache when possible.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.Account, error) {
	if acc, ok := s.cached(ctx, userID); ok {
		return acc, nil
	}

	if s.cache == nil {
		return s.load(s.db.WithContext(ctx), userID)
	}

	mu := s.fillLock(userID)
	mu.Lock()
	defer mu.Unlock()
	acc, err := s.load(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	s.storeIfNewer(ctx, acc)
	return acc, nil
}

// EditUser applies the patch and returns the updated account.
func (s *Service) EditUser(ctx context.Context, userID int64, p Patch) (*model.Account, error) {
	cols := p.columns()
	if len(cols) == 0 {
		return s.GetProfile(ctx, userID)
	}

	var acc *model.Account
	// Held across the commit so no fill can slip a pre-edit row in after it.
	mu := s.fillLock(userID)
	mu.Lock()
	defer mu.Unlock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// RowsAffected is not used: mysql reports 0 for a no-op update.
		if err := tx.Model(&model.Account{}).Where("id = ?", userID).Updates(cols).Error; err != nil {
			return fmt.Errorf("user: update: %w", err)
		}
		var err error
		acc, err = s.load(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.store(ctx, acc)
	s.audit.Log(ctx, audit.Entry{AccountID: &userID, Action: audit.ActionProfileEdit, Detail: cols})
	return acc, nil
}

func (s *Service) load(tx *gorm.DB, userID int64) (*model.Account, error) {
	var acc model.Account
	err := tx.First(&acc, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user: load %d: %w", userID, err)
	}
	acc.PasswordHash = ""
	return &acc, nil
}

func (s *Service) cached(ctx context.Context, userID int64) (*model.Account, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, profileKey(userID))
	if err != nil {
		if !cache.IsMiss(err) {
			s.logger.Warn("profile cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	var acc model.Account
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		s.logger.Warn("profile cache entry corrupt", zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	return &acc, true
}

// storeIfNewer skips the write when the cache already holds a later version,
// as written by another instance sharing the cache.
func (s *Service) storeIfNewer(ctx context.Context, acc *model.Account) {
	if cur, ok := s.cached(ctx, acc.ID); ok && cur.UpdatedAt.After(acc.UpdatedAt) {
		return
	}
	s.store(ctx, acc)
}

func (s *Service) store(ctx context.Context, acc *model.Account) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(acc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, profileKey(acc.ID), string(b), s.profileTTL); err != nil {
		s.logger.Warn("profile cache write failed", zap.Int64("user_id", acc.ID), zap.Error(err))
		s.invalidate(ctx, acc.ID)
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, profileKey(userID)); err != nil {
		s.logger.Warn("profile cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
