package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/krisalay/tlru/types"
)

// Record is one stored value. A nil ExpiresAt never expires.
type Record struct {
	Key       string     `gorm:"column:cache_key;primaryKey;size:255"`
	Value     []byte     `gorm:"column:value"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (Record) TableName() string { return "cache_records" }

/*
Store keeps byte values in a SQL database through gorm.

It is the backing store of the daemon (loader and write policy target) and
can serve as the second level of a composite cache. Records written with a
positive TTL stop being visible once it elapses; DeleteExpired removes them.
*/
type Store struct {
	db  *gorm.DB
	ttl time.Duration

	// Now is the wall clock used for record expiry.
	Now func() time.Time
}

// New migrates the schema and returns a store whose writes live for ttl (0 = forever).
func New(db *gorm.DB, ttl time.Duration) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{db: db, ttl: ttl, Now: time.Now}, nil
}

var _ types.Loader[string, []byte] = (*Store)(nil)

// Get returns the live value of key, or types.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	rec, err := s.live(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// Set writes value under key, replacing any previous record.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.upsert(s.db.WithContext(ctx), &Record{Key: key, Value: value, ExpiresAt: s.expiry()})
}

// errCounterRace means another caller created the counter row first.
var errCounterRace = errors.New("counter created concurrently")

const incrAttempts = 3

/*
Incr adds one to the base-10 integer stored under key and returns the result.
A missing or expired key starts from zero. A live counter keeps its expiry.

The counter row is read with a row lock (FOR UPDATE on postgres and mysql;
sqlite serializes writers on its single connection), so concurrent calls
never lose an increment.
*/
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	for range incrAttempts {
		n, err := s.incr(ctx, key)
		if !errors.Is(err, errCounterRace) {
			return n, err
		}
	}
	return 0, fmt.Errorf("incr %q: %w", key, errCounterRace)
}

func (s *Store) incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cache_key = ?", key).
			Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			n = 1
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&Record{Key: key, Value: []byte("1"), ExpiresAt: s.expiry()})
			if res.Error != nil {
				return fmt.Errorf("incr %q: %w", key, res.Error)
			}
			if res.RowsAffected == 0 {
				return errCounterRace
			}
			return nil
		case err != nil:
			return fmt.Errorf("incr %q: %w", key, err)
		}

		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(s.Now()) {
			rec.ExpiresAt = s.expiry()
		} else if n, err = strconv.ParseInt(string(rec.Value), 10, 64); err != nil {
			return fmt.Errorf("incr %q: value is not an integer: %w", key, err)
		}
		n++

		err = tx.Model(&rec).Updates(map[string]any{
			"value":      []byte(strconv.FormatInt(n, 10)),
			"expires_at": rec.ExpiresAt,
		}).Error
		if err != nil {
			return fmt.Errorf("incr %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes key. Removing a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&Record{Key: key}).Error; err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// DeleteExpired removes every expired record and returns how many.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.Now()).Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Load implements types.Loader.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	return s.Get(ctx, key)
}

// Put implements types.Loader.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Set(ctx, key, value)
}

func (s *Store) live(db *gorm.DB, key string) (*Record, error) {
	var rec Record
	err := db.Where("cache_key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.Now()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return &rec, nil
}

func (s *Store) upsert(db *gorm.DB, rec *Record) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("set %q: %w", rec.Key, err)
	}
	return nil
}

func (s *Store) expiry() *time.Time {
	if s.ttl <= 0 {
		return nil
	}
	t := s.Now().Add(s.ttl)
	return &t
}
