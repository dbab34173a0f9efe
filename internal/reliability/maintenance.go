package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/trinistocks/pipeline/internal/database"
)

// Free space thresholds of the cache volume, in GB.
const (
	criticalFreeGB = 0.5
	lowFreeGB      = 5.0
)

// DailyMaintenance checks the store and the cache volume.
type DailyMaintenance struct {
	db       *database.DB
	cacheDir string
	log      zerolog.Logger
	usage    func(path string) (*disk.UsageStat, error)
}

// NewDailyMaintenance creates the daily maintenance job.
func NewDailyMaintenance(db *database.DB, cacheDir string, log zerolog.Logger) *DailyMaintenance {
	return &DailyMaintenance{
		db:       db,
		cacheDir: cacheDir,
		log:      log.With().Str("job", "daily_maintenance").Logger(),
		usage:    disk.Usage,
	}
}

// Name returns the job name for the scheduler.
func (j *DailyMaintenance) Name() string {
	return "daily_maintenance"
}

// Run checks integrity, truncates the SQLite WAL and checks free space.
// Running out of space is the only failure; everything else is logged.
func (j *DailyMaintenance) Run(ctx context.Context) error {
	start := time.Now()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Store health check failed")
	}
	if j.db.Dialect() == database.SQLite {
		if _, err := j.db.Conn().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("Daily maintenance completed")
	return nil
}

func (j *DailyMaintenance) checkDiskSpace() error {
	usage, err := j.usage(j.cacheDir)
	if err != nil {
		return fmt.Errorf("failed to stat cache volume: %w", err)
	}
	freeGB := float64(usage.Free) / 1e9

	switch {
	case freeGB < criticalFreeGB:
		j.log.Error().Float64("free_gb", freeGB).Msg("Cache volume is full")
		return fmt.Errorf("only %.2f GB free on %s", freeGB, usage.Path)
	case freeGB < lowFreeGB:
		j.log.Warn().Float64("free_gb", freeGB).Msg("Cache volume running low")
	default:
		j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space check")
	}
	return nil
}

// WeeklyMaintenance compacts a SQLite store. It does nothing on MySQL.
type WeeklyMaintenance struct {
	db  *database.DB
	log zerolog.Logger
}

// NewWeeklyMaintenance creates the weekly maintenance job.
func NewWeeklyMaintenance(db *database.DB, log zerolog.Logger) *WeeklyMaintenance {
	return &WeeklyMaintenance{db: db, log: log.With().Str("job", "weekly_maintenance").Logger()}
}

// Name returns the job name for the scheduler.
func (j *WeeklyMaintenance) Name() string {
	return "weekly_maintenance"
}

// Run vacuums the store.
func (j *WeeklyMaintenance) Run(ctx context.Context) error {
	if j.db.Dialect() != database.SQLite {
		return nil
	}
	before := j.sizeMB(ctx)
	if _, err := j.db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	after := j.sizeMB(ctx)

	j.log.Info().
		Float64("size_before_mb", before).
		Float64("size_after_mb", after).
		Float64("space_reclaimed_mb", before-after).
		Msg("VACUUM completed")
	return nil
}

func (j *WeeklyMaintenance) sizeMB(ctx context.Context) float64 {
	var pageCount, pageSize int
	_ = j.db.Conn().QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	_ = j.db.Conn().QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	return float64(pageCount*pageSize) / 1024 / 1024
}
