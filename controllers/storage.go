package controllers

import (
	"fmt"
	"net/http"

	"lookboardapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
)

type StorageObjectOut struct {
	Key string `json:"key"`
}

type StorageDeleteIn struct {
	Key string `json:"key" validate:"required"`
}

type StorageEmptyIn struct {
	Prefix string `json:"prefix" validate:"required"`
}

// StorageController is the superadmin surface over the R2 bucket. Normal
// cleanup goes through model/item/batch deletion; this is for stranded
// objects.
type StorageController struct {
	AWSService services.AWSServiceProvider
}

func (controller *StorageController) StorageRoutes(g *echo.Group) {
	g.GET("/list", controller.ListObjects)
	g.POST("/delete", controller.DeleteObject)
	g.POST("/empty", controller.EmptyPrefix)
}

func (controller *StorageController) ListObjects(c echo.Context) error {
	prefix := c.QueryParam("prefix")
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	keys, err := controller.AWSService.ListObjects(c.Request().Context(), bucketName, prefix)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to list storage objects"})
	}
	out := []StorageObjectOut{}
	for _, key := range keys {
		out = append(out, StorageObjectOut{Key: key})
	}
	return c.JSON(http.StatusOK, out)
}

func (controller *StorageController) DeleteObject(c echo.Context) error {
	var req StorageDeleteIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	if err := controller.AWSService.DeleteObject(c.Request().Context(), bucketName, req.Key); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to delete object"})
	}
	fmt.Printf("[Storage] deleted %s\n", req.Key)
	return c.JSON(http.StatusOK, map[string]string{"message": "Object deleted"})
}

// EmptyPrefix removes every object under the prefix. The prefix is required
// so an empty request body cannot wipe the bucket.
func (controller *StorageController) EmptyPrefix(c echo.Context) error {
	var req StorageEmptyIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	ctx := c.Request().Context()
	keys, err := controller.AWSService.ListObjects(ctx, bucketName, req.Prefix)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to list storage objects"})
	}
	deleted := 0
	for _, key := range keys {
		if err := controller.AWSService.DeleteObject(ctx, bucketName, key); err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("Failed after deleting %d objects", deleted)})
		}
		deleted++
	}
	fmt.Printf("[Storage] emptied prefix %s, %d objects\n", req.Prefix, deleted)
	return c.JSON(http.StatusOK, map[string]int{"deleted": deleted})
}
