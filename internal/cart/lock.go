package cart

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/google/uuid"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockWait  = 3 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// WithUserLock serializes fn against other mutations of the same user's cart.
// Release only deletes the key while it still holds this caller's owner token.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	key := s.client.CartLockKey(UserKey(userID))
	owner := uuid.NewString()
	deadline := s.now().Add(s.lockWait)

	for {
		ok, err := s.client.SetNX(ctx, key, owner, s.lockTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
		}
		if ok {
			break
		}
		if !s.now().Before(deadline) {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart is busy, retry shortly")
		}
		timer := time.NewTimer(s.lockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if _, err := s.client.CompareAndDelete(releaseCtx, key, owner); err != nil {
			s.logg.Error(ctx, "failed to release cart lock", err)
		}
	}()
	return fn(ctx)
}
