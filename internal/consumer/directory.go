package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// TopicDirectoryUpdated carries admin edits to services, staff, hours and
// holidays.
const TopicDirectoryUpdated = "directory.updated.v1"

// directoryUpdate is the payload of directory.updated.v1. ID depends on the
// entity: "service" and "staff" carry the record uuid, "holiday" carries the
// calendar day as YYYY-MM-DD, and "business_hours" leaves it empty.
type directoryUpdate struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

// DirectoryCache is the invalidation surface of the cached directory.
type DirectoryCache interface {
	Invalidate(ctx context.Context, entity, id string)
}

// DirectoryUpdateHandler invalidates the directory cache for the edited
// entity so slot computation sees configuration changes promptly.
func DirectoryUpdateHandler(cache DirectoryCache, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var update directoryUpdate
		if err := json.Unmarshal(msg.Value, &update); err != nil {
			logger.Warn("malformed directory update, flushing cache", "err", err)
			cache.Invalidate(ctx, "", "")
			return nil
		}
		cache.Invalidate(ctx, update.Entity, update.ID)
		logger.Info("directory cache invalidated", "entity", update.Entity, "id", update.ID)
		return nil
	}
}
