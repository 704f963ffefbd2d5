package controllers

import (
	"context"
	"fmt"
	"net/http"

	"lookboardapi/models"
	"lookboardapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type ModelProfileResponse struct {
	ID           uint     `json:"id"`
	Name         string   `json:"name"`
	Gender       string   `json:"gender"`
	Status       string   `json:"status"`
	RefImageUrls []string `json:"ref_image_urls"`
}

type ModelProfileController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *ModelProfileController) ModelProfileRoutes(g *echo.Group) {
	g.GET("/list", controller.ListModels)
	g.POST("/create", controller.CreateModel)
	g.POST("/upload-refs", controller.PresignRefUploads)
	g.POST("/:modelId/reset", controller.ResetModel)
	g.DELETE("/:modelId", controller.DeleteModel)
}

func (controller *ModelProfileController) presentModel(ctx context.Context, model models.ModelProfile) ModelProfileResponse {
	resp := ModelProfileResponse{
		ID:     model.ID,
		Name:   model.Name,
		Gender: model.Gender,
		Status: model.Status,
	}
	for _, key := range model.RefImageKeys {
		url, err := controller.URLCache.GetReadURL(ctx, key)
		if err != nil {
			fmt.Printf("[Model: %v] failed to presign ref %s: %v\n", model.ID, key, err)
			sentry.CaptureException(err)
			continue
		}
		resp.RefImageUrls = append(resp.RefImageUrls, url)
	}
	return resp
}

func (controller *ModelProfileController) ListModels(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var profiles []models.ModelProfile
	if err := db.Where("owner_id = ?", user.ID).Order("created_at desc").Find(&profiles).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch models"})
	}

	out := []ModelProfileResponse{}
	for _, p := range profiles {
		out = append(out, controller.presentModel(c.Request().Context(), p))
	}
	return c.JSON(http.StatusOK, out)
}

// PresignRefUploads hands out R2 upload links for reference photos before
// the profile exists.
func (controller *ModelProfileController) PresignRefUploads(c echo.Context) error {
	var req models.RefUploadRequestIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	out := models.RefUploadRequestOut{}
	for _, name := range req.FileNames {
		clean := services.CanonicalUploadName(name)
		if !services.IsAllowedImageName(clean) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Unsupported image file %q", name)})
		}
		key := fmt.Sprintf("modelrefs/%d/%s", user.ID, clean)
		uploadUrl, err := controller.AWSService.PresignLink(context.Background(), bucketName, key)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to prepare upload"})
		}
		out.Uploads = append(out.Uploads, models.RefUploadOut{FileName: name, Key: key, UploadUrl: uploadUrl})
	}
	return c.JSON(http.StatusOK, out)
}

func (controller *ModelProfileController) CreateModel(c echo.Context) error {
	var req models.ModelProfileIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	deduped := services.DedupeReferenceKeys(req.RefImageKeys)
	if len(deduped) < 3 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "At least 3 distinct reference images are required"})
	}

	profile := models.ModelProfile{
		Name:         req.Name,
		Gender:       req.Gender,
		OwnerID:      user.ID,
		RefImageKeys: deduped,
		Status:       "ready",
	}
	if err := db.Create(&profile).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create model"})
	}
	fmt.Printf("[Model: %v] created with %d refs\n", profile.ID, len(profile.RefImageKeys))
	return c.JSON(http.StatusCreated, controller.presentModel(c.Request().Context(), profile))
}

// ResetModel drops the profile back to draft and clears its references.
// Panel batches and history rows stay untouched; the lock key changes with
// the references anyway.
func (controller *ModelProfileController) ResetModel(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var modelId uint
	if err := echo.PathParamsBinder(c).Uint("modelId", &modelId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	var profile models.ModelProfile
	db.Where("owner_id = ?", user.ID).First(&profile, modelId)
	if profile.ID == 0 {
		return echo.ErrNotFound
	}
	profile.RefImageKeys = nil
	profile.Status = "draft"
	if err := db.Save(&profile).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to reset model"})
	}
	fmt.Printf("[Model: %v] reset to draft\n", profile.ID)
	return c.JSON(http.StatusOK, controller.presentModel(c.Request().Context(), profile))
}

func (controller *ModelProfileController) DeleteModel(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var modelId uint
	if err := echo.PathParamsBinder(c).Uint("modelId", &modelId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	var profile models.ModelProfile
	db.Where("owner_id = ?", user.ID).First(&profile, modelId)
	if profile.ID == 0 {
		return echo.ErrNotFound
	}
	if err := db.Delete(&profile).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete model"})
	}
	fmt.Printf("[Model: %v] deleted\n", modelId)
	return c.JSON(http.StatusOK, map[string]string{"message": "Model deleted"})
}
