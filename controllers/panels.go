package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lookboardapi/models"
	"lookboardapi/services"
	"lookboardapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type PanelController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
	Vision     services.VisionProvider
	Shopify    services.ShopifyProvider
}

func (controller *PanelController) PanelRoutes(g *echo.Group) {
	g.POST("/generate", controller.GenerateBatch)
	g.GET("/list", controller.ListBatches)
	g.GET("/batches/:batchId", controller.GetBatch)
	g.POST("/results/:resultId/approve", controller.ToggleApprove)
	g.POST("/results/:resultId/split", controller.SplitResult)
	g.GET("/results/:resultId/crops", controller.ListCrops)
	g.POST("/results/:resultId/push", controller.PushToShopify)
	g.POST("/pose-scan", controller.PoseScan)
}

func dailyPanelLimit(user models.UserAccount) int {
	if user.EnforcedDailyPanelLimit != nil {
		return *user.EnforcedDailyPanelLimit
	}
	limit, err := strconv.Atoi(services.GetEnv("DAILY_PANEL_BATCH_LIMIT", "40"))
	if err != nil {
		return 40
	}
	return limit
}

// GenerateBatch validates the request, applies the regenerate gate and the
// daily limit, then queues the batch for the worker. All provider calls
// happen in the task, never here.
func (controller *PanelController) GenerateBatch(c echo.Context) error {
	var req models.GenerateBatchIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	var profile models.ModelProfile
	db.Where("owner_id = ?", user.ID).First(&profile, req.ModelProfileID)
	if profile.ID == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Model not found"})
	}
	if len(profile.RefImageKeys) < 3 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Model needs at least 3 reference images"})
	}

	var item models.Item
	db.Where("owner_id = ?", user.ID).First(&item, req.ItemID)
	if item.ID == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Item not found"})
	}
	if item.ItemType == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Item type is required before generating"})
	}
	if len(item.RefImageKeys) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Item needs at least one reference image"})
	}

	if services.GetSensitivityTier(item.ItemType) == services.SensitivityHigh {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "This item category is not supported for generation"})
	}

	lockKey := services.BuildPanelLockKey(profile.ID, item.ItemType, item.RefImageKeys)

	if req.Mode == "regenerate" {
		for _, panel := range req.Panels {
			var count int64
			if err := db.Model(&models.PanelHistory{}).Where("lock_key = ? AND panel = ?", lockKey, panel).Count(&count).Error; err != nil {
				sentry.CaptureException(err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to check panel history"})
			}
			if count == 0 {
				return c.JSON(http.StatusConflict, map[string]string{"error": fmt.Sprintf("Panel %d was never generated for this model and item, generate it first", panel)})
			}
		}
	}

	limit := dailyPanelLimit(user)
	var dailyBatchCount int64
	today := time.Now().UTC().Format("2006-01-02")
	if err := db.Model(&models.PanelBatch{}).Where("owner_id = ? AND DATE(created_at) = ?", user.ID, today).Count(&dailyBatchCount).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get batch data"})
	}
	fmt.Printf("[User %v] Daily limit %v, batch count: %v\n", user.ID, limit, dailyBatchCount)
	if dailyBatchCount >= int64(limit) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": fmt.Sprintf("You have reached the limit of %v daily generation batches. Please wait for the next day.", limit)})
	}

	panels := pq.Int64Array{}
	for _, p := range req.Panels {
		panels = append(panels, int64(p))
	}
	batch := models.PanelBatch{
		OwnerID:         user.ID,
		ModelProfileID:  profile.ID,
		ItemID:          item.ID,
		LockKey:         lockKey,
		Mode:            req.Mode,
		RequestedPanels: panels,
		Status:          "pending",
	}
	if req.StyleNotes != "" {
		batch.StyleNotes = StrPointer(req.StyleNotes)
	}
	if req.RegenNotes != "" {
		batch.RegenNotes = StrPointer(req.RegenNotes)
	}
	if err := db.Create(&batch).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create batch"})
	}

	task, err := tasks.NewPanelBatchTask(batch.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not queue generation, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not queue generation, please try again"})
	}
	fmt.Println("[Queue] Panel batch task submitted, Batch ID: ", batch.ID, " Task ID: ", info.ID)

	return c.JSON(http.StatusCreated, models.PanelBatchOut{
		Id:     batch.ID,
		Status: batch.Status,
		Mode:   batch.Mode,
	})
}

func (controller *PanelController) presentBatch(c echo.Context, batch models.PanelBatch, results []models.PanelResult) models.PanelBatchOut {
	out := models.PanelBatchOut{
		Id:           batch.ID,
		Status:       batch.Status,
		Mode:         batch.Mode,
		ErrorMessage: batch.ErrorMessage,
	}
	ctx := c.Request().Context()
	for _, r := range results {
		row := models.PanelResultOut{
			Panel:       r.Panel,
			Status:      r.Status,
			ViaFallback: r.ViaFallback,
			FailReason:  r.FailReason,
			Approved:    r.Approved,
		}
		if r.ImageKey != nil {
			url, err := controller.URLCache.GetReadURL(ctx, *r.ImageKey)
			if err != nil {
				fmt.Printf("[Batch: %v] failed to presign panel %d: %v\n", batch.ID, r.Panel, err)
				sentry.CaptureException(err)
			} else {
				row.ImageUrl = &url
			}
		}
		out.Panels = append(out.Panels, row)
	}
	return out
}

func (controller *PanelController) ListBatches(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var batches []models.PanelBatch
	if err := db.Where("owner_id = ?", user.ID).Order("created_at desc").Limit(50).Find(&batches).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch batches"})
	}
	out := []models.PanelBatchOut{}
	for _, b := range batches {
		var results []models.PanelResult
		db.Where("panel_batch_id = ?", b.ID).Order("panel").Find(&results)
		out = append(out, controller.presentBatch(c, b, results))
	}
	return c.JSON(http.StatusOK, out)
}

func (controller *PanelController) GetBatch(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var batchId uint
	if err := echo.PathParamsBinder(c).Uint("batchId", &batchId).BindError(); err != nil {
		return echo.ErrBadRequest
	}
	var batch models.PanelBatch
	db.Where("owner_id = ?", user.ID).First(&batch, batchId)
	if batch.ID == 0 {
		return echo.ErrNotFound
	}
	var results []models.PanelResult
	db.Where("panel_batch_id = ?", batch.ID).Order("panel").Find(&results)
	return c.JSON(http.StatusOK, controller.presentBatch(c, batch, results))
}

func (controller *PanelController) fetchOwnResult(c echo.Context) (*models.PanelResult, error) {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var resultId uint
	if err := echo.PathParamsBinder(c).Uint("resultId", &resultId).BindError(); err != nil {
		return nil, echo.ErrBadRequest
	}
	var result models.PanelResult
	db.Preload("PanelBatch").First(&result, resultId)
	if result.ID == 0 || result.PanelBatch.OwnerID != user.ID {
		return nil, echo.ErrNotFound
	}
	return &result, nil
}

func (controller *PanelController) ToggleApprove(c echo.Context) error {
	result, err := controller.fetchOwnResult(c)
	if err != nil {
		return err
	}
	db := c.Get("__db").(*gorm.DB)

	if result.Status != "succeeded" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Only succeeded panels can be approved"})
	}
	result.Approved = !result.Approved
	if err := db.Save(result).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update panel"})
	}
	fmt.Printf("[Panel result: %v] approved=%v\n", result.ID, result.Approved)
	return c.JSON(http.StatusOK, map[string]bool{"approved": result.Approved})
}

// SplitResult queues the 3:4 split of an approved panel.
func (controller *PanelController) SplitResult(c echo.Context) error {
	result, err := controller.fetchOwnResult(c)
	if err != nil {
		return err
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}
	if !result.Approved || result.ImageKey == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Panel must be approved before splitting"})
	}

	task, err := tasks.NewPanelSplitTask(result.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not queue split, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not queue split, please try again"})
	}
	fmt.Println("[Queue] Panel split task submitted, Result ID: ", result.ID, " Task ID: ", info.ID)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (controller *PanelController) ListCrops(c echo.Context) error {
	result, err := controller.fetchOwnResult(c)
	if err != nil {
		return err
	}
	db := c.Get("__db").(*gorm.DB)

	var crops []models.SplitCrop
	db.Where("panel_result_id = ?", result.ID).Order("side").Find(&crops)

	ctx := c.Request().Context()
	out := []models.SplitCropOut{}
	for _, crop := range crops {
		row := models.SplitCropOut{
			Side:       crop.Side,
			PoseNumber: crop.PoseNumber,
			FileName:   crop.FileName,
		}
		url, err := controller.URLCache.GetReadURL(ctx, crop.ImageKey)
		if err != nil {
			sentry.CaptureException(err)
		} else {
			row.ImageUrl = &url
		}
		out = append(out, row)
	}
	return c.JSON(http.StatusOK, out)
}

// PushToShopify uploads the result's split crops as product media.
func (controller *PanelController) PushToShopify(c echo.Context) error {
	result, err := controller.fetchOwnResult(c)
	if err != nil {
		return err
	}
	var req models.ShopifyPushIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	db := c.Get("__db").(*gorm.DB)

	var crops []models.SplitCrop
	db.Where("panel_result_id = ?", result.ID).Order("side").Find(&crops)
	if len(crops) == 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Split the panel before pushing"})
	}

	ctx := c.Request().Context()
	pushed := 0
	for i := range crops {
		crop := &crops[i]
		url, err := controller.URLCache.GetReadURL(ctx, crop.ImageKey)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read crop image"})
		}
		content, err := services.ReadFileFromUrl(url)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to read crop image"})
		}
		image, err := controller.Shopify.PushImage(ctx, req.ProductID, services.EncodeBase64(content), crop.FileName)
		if err != nil {
			fmt.Printf("[Panel result: %v] push failed for %s: %v\n", result.ID, crop.FileName, err)
			sentry.CaptureException(err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("Failed to push %s", crop.FileName)})
		}
		crop.PushedImageID = Int64Pointer(image.ID)
		db.Save(crop)
		pushed++
	}
	fmt.Printf("[Panel result: %v] pushed %d crops to product %v\n", result.ID, pushed, req.ProductID)
	return c.JSON(http.StatusOK, map[string]int{"pushed": pushed})
}

// PoseScan rates the pose library against the item's garment.
func (controller *PanelController) PoseScan(c echo.Context) error {
	var req models.PoseScanIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var item models.Item
	db.Where("owner_id = ?", user.ID).First(&item, req.ItemID)
	if item.ID == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Item not found"})
	}
	if item.ItemType == "" || len(item.RefImageKeys) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Item needs a type and reference images first"})
	}

	ctx := c.Request().Context()
	var images []services.VisionImage
	for _, key := range item.RefImageKeys {
		url, err := controller.URLCache.GetReadURL(ctx, key)
		if err != nil {
			sentry.CaptureException(err)
			continue
		}
		content, err := services.ReadFileFromUrl(url)
		if err != nil {
			continue
		}
		images = append(images, services.VisionImage{Data: content})
	}
	if len(images) == 0 {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Could not load item reference images"})
	}

	report, err := controller.Vision.ScanPoses(ctx, images, item.ItemType, req.Genders)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Pose scan failed"})
	}

	suggestions := report.SafetySuggestions()
	if len(suggestions) > 0 {
		encoded, err := json.Marshal(suggestions)
		if err != nil {
			sentry.CaptureException(err)
		} else {
			item.PoseSafetyNotes = StrPointer(string(encoded))
			db.Save(&item)
		}
	} else {
		item.PoseSafetyNotes = nil
		db.Save(&item)
	}
	fmt.Printf("[Item: %v] pose scan stored %d safety notes\n", item.ID, len(suggestions))
	return c.JSON(http.StatusOK, report)
}
