package licensesync

import (
	"strconv"
	"sync"
	"time"

	"github.com/licensedesk/licensedesk/app/repository"
	"github.com/licensedesk/licensedesk/internal/pkg/cache"
	"github.com/licensedesk/licensedesk/internal/pkg/env"
)

var (
	engineOnce sync.Once
	engine     *Orchestrator
)

// GetEngine returns the process-wide sync engine, creating it on first use.
// The repository factory and cache must be initialized before the first call.
func GetEngine() *Orchestrator {
	engineOnce.Do(func() {
		engine = NewOrchestrator(
			NewClientFromEnv(),
			repository.GetGlobalFactory().GetLicenseRepository(),
			NewMemoryTracker(),
			NewRedisRunLock(cache.GetClient()),
		)
		if v, err := strconv.Atoi(env.GetEnv("LICENSE_SYNC_BUDGET_MINUTES", "")); err == nil && v > 0 {
			engine.SetBudget(time.Duration(v) * time.Minute)
		}
	})
	return engine
}
