package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/sharedcode/txn"
)

// FormatLockKey prefixes the key with 'L' to form the namespaced Redis key used for locking.
func FormatLockKey(k string) string {
	return fmt.Sprintf("L%s", k)
}

// CreateLockKeys creates lock keys using newly generated lock IDs for each provided key name.
func CreateLockKeys(keys []string) []*txn.LockKey {
	lockKeys := make([]*txn.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &txn.LockKey{
			// Prefix key with "L" to increase uniqueness.
			Key:    FormatLockKey(keys[i]),
			LockID: txn.NewUUID(),
		}
	}
	return lockKeys
}

// Lock attempts to acquire locks for all provided keys using the given TTL duration.
// If any key is already locked by another owner, it returns false and that owner's UUID.
func Lock(ctx context.Context, c Cache, duration time.Duration, lockKeys []*txn.LockKey) (bool, txn.UUID, error) {
	for _, lk := range lockKeys {
		found, readItem, err := c.Get(ctx, lk.Key)
		if err != nil {
			return false, txn.NilUUID, err
		}
		if found {
			// Item found in Redis, check if not ours. Most likely, but check anyway.
			if readItem != lk.LockID.String() {
				id, _ := txn.ParseUUID(readItem)
				return false, id, nil
			}
			continue
		}

		// Item does not exist, upsert it.
		if err := c.Set(ctx, lk.Key, lk.LockID.String(), duration); err != nil {
			return false, txn.NilUUID, err
		}
		// Use a 2nd "get" to ensure we "won" the lock attempt & fail if not.
		if found, readItem2, err := c.Get(ctx, lk.Key); !found || err != nil {
			return false, txn.NilUUID, err
		} else if readItem2 != lk.LockID.String() {
			id, _ := txn.ParseUUID(readItem2)
			// Item found in Redis, lock attempt failed.
			return false, id, nil
		}
		// We got the item locked, ensure we can unlock it.
		lk.IsLockOwner = true
	}
	// Successfully locked.
	return true, txn.NilUUID, nil
}

// IsLocked reports whether all provided lock keys are currently owned by this process.
func IsLocked(ctx context.Context, c Cache, lockKeys []*txn.LockKey) (bool, error) {
	r := true
	var lastErr error
	for _, lk := range lockKeys {
		found, readItem, err := c.Get(ctx, lk.Key)
		if !found || err != nil {
			lk.IsLockOwner = false
			r = false
			if err != nil {
				lastErr = err
			}
			continue
		}
		// Item found in Redis has a different value, means key is locked by someone else.
		if readItem != lk.LockID.String() {
			lk.IsLockOwner = false
			r = false
			continue
		}
		lk.IsLockOwner = true
	}
	return r, lastErr
}

// IsLockedTTL reports whether all provided lock keys are owned by this process and
// extends their TTL by the specified duration when owned.
func IsLockedTTL(ctx context.Context, c Cache, duration time.Duration, lockKeys []*txn.LockKey) (bool, error) {
	r := true
	var lastErr error
	for _, lk := range lockKeys {
		found, readItem, err := c.GetEx(ctx, lk.Key, duration)
		if !found || err != nil {
			lk.IsLockOwner = false
			r = false
			if err != nil {
				lastErr = err
			}
			continue
		}
		if readItem != lk.LockID.String() {
			lk.IsLockOwner = false
			r = false
			continue
		}
		lk.IsLockOwner = true
	}
	return r, lastErr
}

// Unlock releases the provided lock keys, deleting only those owned by this process.
func Unlock(ctx context.Context, c Cache, lockKeys []*txn.LockKey) error {
	var lastErr error
	for _, lk := range lockKeys {
		if !lk.IsLockOwner {
			continue
		}
		// Delete lock key if we own it.
		if found, err := c.Delete(ctx, []string{lk.Key}); !found || err != nil {
			// Ignore if key not in cache, not an issue.
			if err == nil {
				continue
			}
			lastErr = err
		}
	}
	return lastErr
}
