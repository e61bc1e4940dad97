package controller

import (
	"errors"
	"log"
	"time"

	"edublast/models"
	"edublast/utils"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type BroadcastController struct {
	DB     *gorm.DB
	Engine *utils.Broadcaster
	Logger *log.Logger
}

func NewBroadcastController(db *gorm.DB, engine *utils.Broadcaster, logger *log.Logger) *BroadcastController {
	return &BroadcastController{
		DB:     db,
		Engine: engine,
		Logger: logger,
	}
}

type SendBroadcastRequest struct {
	TemplateID  uint                 `json:"template_id" validate:"required"`
	Mode        string               `json:"mode" validate:"required,oneof=all role emails upload"`
	Role        string               `json:"role" validate:"omitempty,oneof=trainer admin"`
	Emails      []string             `json:"emails" validate:"omitempty,dive,email"`
	Rows        []models.UploadedRow `json:"rows"`
	ScheduledAt *string              `json:"scheduled_at"` // RFC3339; nil sends immediately
}

type PreviewRequest struct {
	TemplateID uint   `json:"template_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

// SendBroadcast creates a broadcast and dispatches it, or stores it for the
// scheduler when scheduled_at is set.
func (bc *BroadcastController) SendBroadcast(c *fiber.Ctx) error {
	var input SendBroadcastRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.Mode == models.SelectorRole && input.Role == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "role is required for role mode", nil)
	}
	if input.Mode == models.SelectorEmails && len(input.Emails) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "emails is required for emails mode", nil)
	}
	if input.Mode == models.SelectorUpload && len(input.Rows) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "rows is required for upload mode", nil)
	}

	selector := models.RecipientSelector{
		Mode:   input.Mode,
		Role:   input.Role,
		Emails: input.Emails,
		Rows:   input.Rows,
	}

	if input.ScheduledAt != nil {
		scheduledAt, err := time.Parse(time.RFC3339, *input.ScheduledAt)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid scheduled_at", err)
		}

		broadcast := models.Broadcast{
			TemplateID:  input.TemplateID,
			Selector:    selector,
			Status:      models.BroadcastStatusScheduled,
			ScheduledAt: &scheduledAt,
		}
		if err := bc.DB.Create(&broadcast).Error; err != nil {
			bc.Logger.Printf("Failed to schedule broadcast: %v", err)
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to schedule broadcast", nil)
		}

		return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
			"broadcast_id": broadcast.ID,
			"status":       broadcast.Status,
			"scheduled_at": scheduledAt,
		}))
	}

	result, err := bc.Engine.Send(c.Context(), input.TemplateID, selector)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrTemplateNotFound):
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
		case errors.Is(err, utils.ErrEmptyRecipientSet):
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "No recipients resolved", nil)
		default:
			bc.Logger.Printf("Broadcast failed: %v", err)
			sentry.CaptureException(err)
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Broadcast failed", nil)
		}
	}

	return c.JSON(utils.SuccessResponse(result))
}

// PreviewBroadcast renders one recipient's personalized document without
// dispatching anything.
func (bc *BroadcastController) PreviewBroadcast(c *fiber.Ctx) error {
	var input PreviewRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	subject, html, err := bc.Engine.Preview(c.Context(), input.TemplateID, input.Email)
	if err != nil {
		if errors.Is(err, utils.ErrTemplateNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
		}
		bc.Logger.Printf("Preview failed: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Preview failed", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"subject": subject,
		"html":    html,
	}))
}

// GetBroadcasts lists broadcasts with pagination and an optional status
// filter.
func (bc *BroadcastController) GetBroadcasts(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := bc.DB.Model(&models.Broadcast{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		bc.Logger.Printf("Failed to count broadcasts: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch broadcasts", nil)
	}

	var broadcasts []models.Broadcast
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&broadcasts).Error; err != nil {
		bc.Logger.Printf("Failed to fetch broadcasts: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch broadcasts", nil)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  broadcasts,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetBroadcast returns one broadcast with its per-status delivery stats.
func (bc *BroadcastController) GetBroadcast(c *fiber.Ctx) error {
	broadcastID := utils.ParseUint(c.Params("id"))

	var broadcast models.Broadcast
	if err := bc.DB.First(&broadcast, broadcastID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", nil)
	}

	rows, err := bc.DB.Model(&models.DeliveryRecord{}).
		Select("status, COUNT(*) as count").
		Where("broadcast_id = ?", broadcastID).
		Group("status").
		Rows()
	if err != nil {
		bc.Logger.Printf("Failed to query delivery stats: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch broadcast", nil)
	}
	defer rows.Close()

	stats := map[string]int{
		"total":  0,
		"queued": 0,
		"sent":   0,
		"failed": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			bc.Logger.Printf("Failed to scan stats row: %v", err)
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch broadcast", nil)
		}
		if _, ok := stats[status]; ok {
			stats[status] = count
		}
		stats["total"] += count
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"broadcast": broadcast,
		"stats":     stats,
	}))
}

// GetBroadcastRecords returns the delivery ledger rows of one broadcast.
func (bc *BroadcastController) GetBroadcastRecords(c *fiber.Ctx) error {
	broadcastID := utils.ParseUint(c.Params("id"))

	var broadcast models.Broadcast
	if err := bc.DB.First(&broadcast, broadcastID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Broadcast not found", nil)
	}

	query := bc.DB.Where("broadcast_id = ?", broadcastID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var records []models.DeliveryRecord
	if err := query.Order("id ASC").Find(&records).Error; err != nil {
		bc.Logger.Printf("Failed to fetch delivery records: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch delivery records", nil)
	}

	return c.JSON(utils.SuccessResponse(records))
}

// trackingPixelGIF is a 1x1 transparent GIF.
var trackingPixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// HandleOpenTracking records an open on the delivery row behind the pixel
// and always serves the pixel, even when the tracking id is unknown.
func (bc *BroadcastController) HandleOpenTracking(c *fiber.Ctx) error {
	trackingID := c.Params("trackingID")

	ledger := &utils.GormLedger{DB: bc.DB}
	if err := ledger.RecordOpen(c.Context(), trackingID); err != nil {
		bc.Logger.Printf("Open tracking miss for %s: %v", trackingID, err)
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(trackingPixelGIF)
}
