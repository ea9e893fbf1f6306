package counter

import (
	"context"
	"strconv"

	"github.com/licensedesk/licensedesk/internal/pkg/cache"
)

const syncCountersKey = "license_sync:counters"

const (
	FieldRuns    = "runs"
	FieldCreated = "records_created"
	FieldUpdated = "records_updated"
	FieldFailed  = "records_failed"
	FieldPushed  = "records_pushed"
)

// AddSyncRun accumulates one finished run into the lifetime counters in Redis.
// Counters are advisory; failures here never affect the run itself.
func AddSyncRun(created, updated, failed, pushed int) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	if err := rdb.HIncrBy(ctx, syncCountersKey, FieldRuns, 1).Err(); err != nil {
		return err
	}
	for field, n := range map[string]int{
		FieldCreated: created,
		FieldUpdated: updated,
		FieldFailed:  failed,
		FieldPushed:  pushed,
	} {
		if n == 0 {
			continue
		}
		if err := rdb.HIncrBy(ctx, syncCountersKey, field, int64(n)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Totals returns the lifetime sync counters.
func Totals() (map[string]int64, error) {
	ctx := context.Background()
	data, err := cache.GetClient().HGetAll(ctx, syncCountersKey).Result()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(data))
	for field, raw := range data {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		totals[field] = n
	}
	return totals, nil
}
