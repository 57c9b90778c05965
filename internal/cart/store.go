package cart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldUserID     = "userId"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"
	fieldExpiresAt  = "expiresAt"
	itemFieldPrefix = "item:"

	scanPageSize    = 100
	expiryNoticeTTL = 24 * time.Hour
	defaultCartTTL  = 30 * 24 * time.Hour
	markerValue     = "1"
)

// ErrCartNotFound is returned when no record exists for the user.
var ErrCartNotFound = errors.New("cart not found")

type kvStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGet(ctx context.Context, key, field string) (string, error)
	TxPipelined(ctx context.Context, fn func(goredis.Pipeliner) error) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	RemoveHashItem(ctx context.Context, key, field, itemPrefix, stampField, stamp string, ttl time.Duration) (int64, error)
	ScanKeys(ctx context.Context, pattern string, count int64, fn func([]string) error) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Ping(ctx context.Context) error

	CartKey(userKey string) string
	CartKeyPattern() string
	CartReservationKey(userKey string) string
	ExpiryNoticeKey(userKey string, days int) string
	CartLockKey(userKey string) string
}

// StoreParams configure the Redis-backed cart store.
type StoreParams struct {
	Client     kvStore
	Logger     *logger.Logger
	Expiration time.Duration
	LockTTL    time.Duration
	LockWait   time.Duration
}

// Store persists one cart per user as a Redis hash plus auxiliary keys.
type Store struct {
	client     kvStore
	logg       *logger.Logger
	expiration time.Duration
	lockTTL    time.Duration
	lockWait   time.Duration
	lockRetry  time.Duration
	now        func() time.Time
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	expiration := params.Expiration
	if expiration <= 0 {
		expiration = defaultCartTTL
	}
	lockTTL := params.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	lockWait := params.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &Store{
		client:     params.Client,
		logg:       logg,
		expiration: expiration,
		lockTTL:    lockTTL,
		lockWait:   lockWait,
		lockRetry:  defaultLockRetry,
		now:        time.Now,
	}, nil
}

// UserKey hashes the user identity so raw ids never appear in key names.
func UserKey(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// Expiration returns the configured cart lifetime.
func (s *Store) Expiration() time.Duration {
	return s.expiration
}

// Ping gates store usability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart store unavailable")
	}
	return nil
}

// GetCart loads the user's cart or returns ErrCartNotFound.
func (s *Store) GetCart(ctx context.Context, userID string) (*Cart, error) {
	return s.loadByKey(ctx, s.client.CartKey(UserKey(userID)))
}

func (s *Store) loadByKey(ctx context.Context, key string) (*Cart, error) {
	fields, err := s.client.HGetAll(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(fields) == 0 {
		return nil, ErrCartNotFound
	}

	cart := &Cart{UserID: fields[fieldUserID]}
	cart.CreatedAt = s.parseTime(ctx, key, fieldCreatedAt, fields[fieldCreatedAt])
	cart.UpdatedAt = s.parseTime(ctx, key, fieldUpdatedAt, fields[fieldUpdatedAt])
	cart.ExpiresAt = s.parseTime(ctx, key, fieldExpiresAt, fields[fieldExpiresAt])

	for field, raw := range fields {
		if !strings.HasPrefix(field, itemFieldPrefix) {
			continue
		}
		var item Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil || item.ProductID == "" || item.Quantity <= 0 {
			logCtx := s.logg.WithFields(ctx, map[string]any{"cart_key": key, "field": field})
			if err == nil {
				err = fmt.Errorf("invalid item payload")
			}
			s.logg.Error(logCtx, "skipping malformed cart item", err)
			continue
		}
		cart.Items = append(cart.Items, item)
	}
	sortByAddedAt(cart.Items)
	return cart, nil
}

func (s *Store) parseTime(ctx context.Context, key, field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"cart_key": key, "field": field})
		s.logg.Warn(logCtx, "unparseable cart timestamp")
		return time.Time{}
	}
	return parsed
}

// SaveCart replaces the whole record and resets its TTL in one MULTI/EXEC.
func (s *Store) SaveCart(ctx context.Context, cart *Cart) error {
	if cart == nil || cart.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart user id is required")
	}
	values := map[string]any{
		fieldUserID:    cart.UserID,
		fieldCreatedAt: formatTime(cart.CreatedAt),
		fieldUpdatedAt: formatTime(cart.UpdatedAt),
		fieldExpiresAt: formatTime(cart.ExpiresAt),
	}
	for _, item := range cart.Items {
		payload, err := json.Marshal(item)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart item")
		}
		values[itemFieldPrefix+item.ProductID] = string(payload)
	}

	key := s.client.CartKey(UserKey(cart.UserID))
	err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.expiration)
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

// RemoveItem drops a single line and refreshes updatedAt and the TTL. Removing the last
// line deletes the record, and a record that is already gone is not recreated.
func (s *Store) RemoveItem(ctx context.Context, userID, productID string) error {
	key := s.client.CartKey(UserKey(userID))
	remaining, err := s.client.RemoveHashItem(ctx, key, itemFieldPrefix+productID, itemFieldPrefix,
		fieldUpdatedAt, formatTime(s.now().UTC()), s.expiration)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if remaining == 0 {
		s.logg.Info(s.logg.WithUserID(ctx, userID), "removed last cart line; cart deleted")
	}
	return nil
}

// ClearCart deletes the record.
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.client.CartKey(UserKey(userID))); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *Store) SetReservation(ctx context.Context, userID, reservationID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.client.CartReservationKey(UserKey(userID)), reservationID, ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set cart reservation")
	}
	return nil
}

// GetReservation returns the active reservation id or "" when none is held.
func (s *Store) GetReservation(ctx context.Context, userID string) (string, error) {
	value, err := s.client.Get(ctx, s.client.CartReservationKey(UserKey(userID)))
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get cart reservation")
	}
	return value, nil
}

func (s *Store) ClearReservation(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.client.CartReservationKey(UserKey(userID))); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart reservation")
	}
	return nil
}

// HasExpiryNotice reports whether a reminder for (user, days) went out within the last day.
func (s *Store) HasExpiryNotice(ctx context.Context, userID string, days int) (bool, error) {
	ok, err := s.client.Exists(ctx, s.client.ExpiryNoticeKey(UserKey(userID), days))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check expiry notice")
	}
	return ok, nil
}

// MarkExpiryNotice records that the reminder for (user, days) was sent.
func (s *Store) MarkExpiryNotice(ctx context.Context, userID string, days int) error {
	if _, err := s.client.SetNX(ctx, s.client.ExpiryNoticeKey(UserKey(userID), days), markerValue, expiryNoticeTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark expiry notice")
	}
	return nil
}

// ScanCartKeys pages over every cart record key.
func (s *Store) ScanCartKeys(ctx context.Context, fn func(keys []string) error) error {
	return s.client.ScanKeys(ctx, s.client.CartKeyPattern(), scanPageSize, fn)
}

// UserIDForKey recovers the raw user id stored inside a record.
func (s *Store) UserIDForKey(ctx context.Context, key string) (string, error) {
	userID, err := s.client.HGet(ctx, key, fieldUserID)
	if errors.Is(err, goredis.Nil) {
		return "", ErrCartNotFound
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve cart owner")
	}
	return userID, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
