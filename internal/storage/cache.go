package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glowbook-hq/glowbook/internal/model"
)

// CachedDirectory is a read-through Redis cache over Directory. Cache
// failures fall through to Postgres so Redis stays optional. Writes to the
// configuration tables go through the admin surface, which emits
// directory.updated.v1; the consumer calls Invalidate.
type CachedDirectory struct {
	inner  *Directory
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(inner *Directory, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

const (
	keyServicePrefix = "dir:service:"
	keyStaffPrefix   = "dir:staff:"
	keyActiveStaff   = "dir:staff:active"
	keyHours         = "dir:hours"
	keyHolidayPrefix = "dir:holiday:"
)

func (c *CachedDirectory) Service(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	if c.get(ctx, keyServicePrefix+id, &svc) {
		return svc, nil
	}
	svc, err := c.inner.Service(ctx, id)
	if err != nil {
		return model.Service{}, err
	}
	c.set(ctx, keyServicePrefix+id, svc)
	return svc, nil
}

func (c *CachedDirectory) Staff(ctx context.Context, id string) (model.Staff, error) {
	var st model.Staff
	if c.get(ctx, keyStaffPrefix+id, &st) {
		return st, nil
	}
	st, err := c.inner.Staff(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	c.set(ctx, keyStaffPrefix+id, st)
	return st, nil
}

func (c *CachedDirectory) ActiveStaff(ctx context.Context) ([]model.Staff, error) {
	var staff []model.Staff
	if c.get(ctx, keyActiveStaff, &staff) {
		return staff, nil
	}
	staff, err := c.inner.ActiveStaff(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, keyActiveStaff, staff)
	return staff, nil
}

func (c *CachedDirectory) BusinessHours(ctx context.Context) (model.WeeklyHours, error) {
	var hours model.WeeklyHours
	if c.get(ctx, keyHours, &hours) {
		return hours, nil
	}
	hours, err := c.inner.BusinessHours(ctx)
	if err != nil {
		return model.WeeklyHours{}, err
	}
	c.set(ctx, keyHours, hours)
	return hours, nil
}

func (c *CachedDirectory) HolidayOn(ctx context.Context, day time.Time) (*model.Holiday, error) {
	key := keyHolidayPrefix + day.Format("2006-01-02")
	var holiday *model.Holiday
	if c.get(ctx, key, &holiday) {
		return holiday, nil
	}
	holiday, err := c.inner.HolidayOn(ctx, day)
	if err != nil {
		return nil, err
	}
	// Absent holidays are cached as JSON null so quiet days skip Postgres too.
	c.set(ctx, key, holiday)
	return holiday, nil
}

// Invalidate drops the cache entries touched by a configuration change.
// Stale hours or holidays must never outlive an admin edit, so anything that
// cannot be mapped to specific keys flushes the whole directory cache.
func (c *CachedDirectory) Invalidate(ctx context.Context, entity, id string) {
	keys, flush := invalidationKeys(entity, id)
	if flush {
		c.flush(ctx)
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("directory cache invalidation failed", "entity", entity, "err", err)
	}
}

// invalidationKeys maps a directory change to the cache keys it touches.
// Ids follow the directory.updated.v1 contract: service and staff changes
// carry the record uuid, holiday changes carry the calendar day (the same
// value HolidayOn keys by). flush means the mapping failed and the whole
// cache must go.
func invalidationKeys(entity, id string) (keys []string, flush bool) {
	switch entity {
	case "service":
		return []string{keyServicePrefix + id, keyActiveStaff}, false
	case "staff":
		return []string{keyStaffPrefix + id, keyActiveStaff}, false
	case "business_hours":
		return []string{keyHours}, false
	case "holiday":
		if _, err := time.Parse("2006-01-02", id); err != nil {
			return nil, true
		}
		return []string{keyHolidayPrefix + id}, false
	default:
		return nil, true
	}
}

func (c *CachedDirectory) flush(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, "dir:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("directory cache flush scan failed", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("directory cache flush failed", "err", err)
	}
}

func (c *CachedDirectory) get(ctx context.Context, key string, dest any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("directory cache read failed", "key", key, "err", err)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("directory cache entry corrupt", "key", key, "err", err)
		return false
	}
	return true
}

func (c *CachedDirectory) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("directory cache write failed", "key", key, "err", err)
	}
}
