package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotforge/internal/model"
	"slotforge/internal/slots"
)

// SnapshotCache publishes generated availability to Redis in per-chunk JSON
// documents so read-side consumers never touch the relational store. Keys
// follow availability:tenant_<t>:location_<l>:<kind>:start_date_<d>.
type SnapshotCache struct {
	rdb    *redis.Client
	ttl    time.Duration // zero means no expiry
	logger *zerolog.Logger
}

// NewSnapshotCache creates a snapshot cache.
func NewSnapshotCache(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl, logger: logger}
}

// SnapshotKey builds the cache key for one chunk.
func SnapshotKey(tenantID, locationID int64, kind model.ScopeKind, startDate string) string {
	return fmt.Sprintf("availability:tenant_%d:location_%d:%s:start_date_%s", tenantID, locationID, kind, startDate)
}

type snapshotSlot struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	ServiceDuration int    `json:"service_duration"`
}

type snapshotUnit struct {
	UnitID int64          `json:"unit_id"`
	Slots  []snapshotSlot `json:"slots"`
}

type snapshotDay struct {
	Date   string         `json:"date"`
	IsOpen bool           `json:"is_open"`
	Units  []snapshotUnit `json:"units"`
}

type snapshotDoc struct {
	TenantID       int64         `json:"tenant_id"`
	LocationID     int64         `json:"location_id"`
	ScopeKind      string        `json:"scope_kind"`
	StartDate      string        `json:"start_date"`
	Availabilities []snapshotDay `json:"availabilities"`
}

// Publish writes one chunk document. On full-horizon runs the now-stale
// previous-day key is removed so the cache window slides forward with the
// horizon.
func (c *SnapshotCache) Publish(ctx context.Context, job *model.GenerationJob, chunkStart time.Time, chunkDays int, byDate map[string][]model.GeneratedSlot, deletePrev bool) error {
	doc := snapshotDoc{
		TenantID:   job.TenantID,
		LocationID: job.LocationID,
		ScopeKind:  string(job.ScopeKind),
		StartDate:  chunkStart.Format(slots.DateFormat),
	}

	for d := 0; d < chunkDays; d++ {
		date := chunkStart.AddDate(0, 0, d).Format(slots.DateFormat)
		doc.Availabilities = append(doc.Availabilities, buildDay(date, byDate[date], chunkStart.Location()))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	key := SnapshotKey(job.TenantID, job.LocationID, job.ScopeKind, doc.StartDate)

	if deletePrev {
		prevKey := SnapshotKey(job.TenantID, job.LocationID, job.ScopeKind,
			chunkStart.AddDate(0, 0, -1).Format(slots.DateFormat))
		deleted, err := c.rdb.Del(ctx, prevKey).Result()
		if err != nil {
			return &model.TransientStorageError{Op: "delete stale snapshot", Err: err}
		}
		if deleted > 0 {
			c.logger.Debug().Str("key", prevKey).Msg("deleted stale snapshot key")
		}
	}

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return &model.TransientStorageError{Op: "write snapshot", Err: err}
	}
	c.logger.Debug().Str("key", key).Msg("snapshot cached")
	return nil
}

func buildDay(date string, daySlots []model.GeneratedSlot, loc *time.Location) snapshotDay {
	day := snapshotDay{Date: date}

	byUnit := make(map[int64][]snapshotSlot)
	var unitIDs []int64
	for _, s := range daySlots {
		if s.IsClosed {
			continue
		}
		if _, seen := byUnit[s.UnitID]; !seen {
			unitIDs = append(unitIDs, s.UnitID)
		}
		byUnit[s.UnitID] = append(byUnit[s.UnitID], snapshotSlot{
			Start:           s.StartAt.In(loc).Format("15:04"),
			End:             s.EndAt.In(loc).Format("15:04"),
			ServiceDuration: s.ServiceDuration,
		})
	}

	sort.Slice(unitIDs, func(i, j int) bool { return unitIDs[i] < unitIDs[j] })
	for _, id := range unitIDs {
		day.Units = append(day.Units, snapshotUnit{UnitID: id, Slots: byUnit[id]})
	}
	day.IsOpen = len(day.Units) > 0
	return day
}
