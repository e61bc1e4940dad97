package worker

import (
	"context"
	"log"
	"time"

	"edublast/models"
	"edublast/utils"

	"gorm.io/gorm"
)

// SchedulerWorker dispatches broadcasts whose scheduled time has arrived.
type SchedulerWorker struct {
	DB     *gorm.DB
	Engine *utils.Broadcaster
	Logger *log.Logger
}

func NewSchedulerWorker(db *gorm.DB, engine *utils.Broadcaster, logger *log.Logger) *SchedulerWorker {
	return &SchedulerWorker{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

func (sw *SchedulerWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	sw.Logger.Println("Broadcast scheduler started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Broadcast scheduler shutting down...")
			return
		case <-ticker.C:
			sw.processDueBroadcasts(ctx)
		}
	}
}

func (sw *SchedulerWorker) processDueBroadcasts(ctx context.Context) {
	var due []models.Broadcast
	if err := sw.DB.
		Where("status = ? AND scheduled_at <= ?", models.BroadcastStatusScheduled, time.Now()).
		Find(&due).Error; err != nil {
		sw.Logger.Printf("Error fetching due broadcasts: %v", err)
		return
	}

	for i := range due {
		bc := &due[i]

		// Claim the row so a second worker pass cannot double-send it.
		claim := sw.DB.Model(&models.Broadcast{}).
			Where("id = ? AND status = ?", bc.ID, models.BroadcastStatusScheduled).
			Update("status", models.BroadcastStatusQueued)
		if claim.Error != nil {
			sw.Logger.Printf("Error claiming broadcast %d: %v", bc.ID, claim.Error)
			continue
		}
		if claim.RowsAffected == 0 {
			continue
		}

		result, err := sw.Engine.Run(ctx, bc)
		if err != nil {
			sw.Logger.Printf("Scheduled broadcast %d failed: %v", bc.ID, err)
			continue
		}
		sw.Logger.Printf("Scheduled broadcast %d dispatched: %d sent, %d failed",
			bc.ID, result.QueuedCount, result.FailedCount)
	}
}
