package service

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/arqgene/moldock/pkg/file"
	"github.com/arqgene/moldock/pkg/log"
)

var cleanupGroup singleflight.Group

// ScheduleCleanup registers the retention sweep on the cron scheduler.
// Interactive workspace files (the active receptor, ligand, poses and
// manifest) are never swept; only batch artifacts age out.
func (o *Orchestrator) ScheduleCleanup(c *cron.Cron) error {
	settings := o.dockingSettings()
	_, err := c.AddFunc(settings.CleanupCronExpr, func() {
		_, _, _ = cleanupGroup.Do("cleanup", func() (any, error) {
			o.sweepBatchArtifacts()
			return nil, nil
		})
	})
	return err
}

func (o *Orchestrator) sweepBatchArtifacts() {
	settings := o.dockingSettings()
	cutoff := time.Now().Add(-time.Duration(settings.RetentionHours) * time.Hour)

	stale, err := file.FindOlderThan(o.cfg.Workspace.DataDir, cutoff)
	if err != nil {
		log.Error("Retention sweep failed to scan workspace: %v", err)
		return
	}

	removed := 0
	for _, path := range stale {
		if !strings.HasPrefix(filepath.Base(path), "batch_") {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Error("Retention sweep failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("Retention sweep removed %d batch artifacts older than %dh", removed, settings.RetentionHours)
	}
}
