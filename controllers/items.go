package controllers

import (
	"context"
	"fmt"
	"net/http"

	"lookboardapi/models"
	"lookboardapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ItemResponse struct {
	ID           uint     `json:"id"`
	ItemType     string   `json:"item_type"`
	Barcode      string   `json:"barcode"`
	Status       string   `json:"status"`
	RefImageUrls []string `json:"ref_image_urls"`
}

type ShopifyImportIn struct {
	ProductID int64 `json:"product_id" validate:"required"`
}

type DropboxSearchIn struct {
	Barcode string `json:"barcode" validate:"required"`
}

type ItemTypeDetectOut struct {
	ItemType string `json:"item_type"`
	Category string `json:"category"`
}

type ItemController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
	Vision     services.VisionProvider
	Shopify    services.ShopifyProvider
	Dropbox    services.DropboxProvider
}

func (controller *ItemController) ItemRoutes(g *echo.Group) {
	g.GET("/list", controller.ListItems)
	g.POST("/create", controller.CreateItem)
	g.PUT("/:itemId", controller.UpdateItem)
	g.POST("/upload-refs", controller.PresignRefUploads)
	g.POST("/:itemId/import-urls", controller.ImportUrls)
	g.POST("/:itemId/detect-type", controller.DetectItemType)
	g.POST("/:itemId/shopify/import", controller.ImportFromShopify)
	g.POST("/shopify/search", controller.SearchShopify)
	g.GET("/dropbox/status", controller.DropboxStatus)
	g.POST("/dropbox/search", controller.SearchDropbox)
}

func (controller *ItemController) presentItem(ctx context.Context, item models.Item) ItemResponse {
	resp := ItemResponse{
		ID:       item.ID,
		ItemType: item.ItemType,
		Barcode:  item.Barcode,
		Status:   item.Status,
	}
	for _, key := range item.RefImageKeys {
		url, err := controller.URLCache.GetReadURL(ctx, key)
		if err != nil {
			fmt.Printf("[Item: %v] failed to presign ref %s: %v\n", item.ID, key, err)
			sentry.CaptureException(err)
			continue
		}
		resp.RefImageUrls = append(resp.RefImageUrls, url)
	}
	return resp
}

func (controller *ItemController) fetchOwnItem(c echo.Context) (*models.Item, error) {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var itemId uint
	if err := echo.PathParamsBinder(c).Uint("itemId", &itemId).BindError(); err != nil {
		return nil, echo.ErrBadRequest
	}
	var item models.Item
	db.Where("owner_id = ?", user.ID).First(&item, itemId)
	if item.ID == 0 {
		return nil, echo.ErrNotFound
	}
	return &item, nil
}

func (controller *ItemController) ListItems(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var items []models.Item
	if err := db.Where("owner_id = ?", user.ID).Order("created_at desc").Find(&items).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch items"})
	}
	out := []ItemResponse{}
	for _, item := range items {
		out = append(out, controller.presentItem(c.Request().Context(), item))
	}
	return c.JSON(http.StatusOK, out)
}

func (controller *ItemController) CreateItem(c echo.Context) error {
	var req models.ItemIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	barcode := services.SanitizeBarcode(req.Barcode)
	if req.Barcode != "" && !services.ValidBarcode(barcode) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Barcode must be 7-9 digits, optionally c-prefixed"})
	}

	item := models.Item{
		OwnerID:      user.ID,
		ItemType:     req.ItemType,
		Barcode:      barcode,
		RefImageKeys: services.DedupeReferenceKeys(req.RefImageKeys),
		Status:       "draft",
	}
	if len(item.RefImageKeys) > 0 {
		item.Status = "saved"
	}
	if err := db.Create(&item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create item"})
	}
	fmt.Printf("[Item: %v] created, type %q, %d refs\n", item.ID, item.ItemType, len(item.RefImageKeys))
	return c.JSON(http.StatusCreated, controller.presentItem(c.Request().Context(), item))
}

func (controller *ItemController) UpdateItem(c echo.Context) error {
	item, err := controller.fetchOwnItem(c)
	if err != nil {
		return err
	}
	var req models.ItemIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	db := c.Get("__db").(*gorm.DB)

	barcode := services.SanitizeBarcode(req.Barcode)
	if req.Barcode != "" && !services.ValidBarcode(barcode) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Barcode must be 7-9 digits, optionally c-prefixed"})
	}

	item.ItemType = req.ItemType
	item.Barcode = barcode
	item.RefImageKeys = services.DedupeReferenceKeys(req.RefImageKeys)
	if len(item.RefImageKeys) > 0 {
		item.Status = "saved"
	}
	if err := db.Save(item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update item"})
	}
	return c.JSON(http.StatusOK, controller.presentItem(c.Request().Context(), *item))
}

func (controller *ItemController) PresignRefUploads(c echo.Context) error {
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
		key := fmt.Sprintf("itemrefs/%d/%s", user.ID, clean)
		uploadUrl, err := controller.AWSService.PresignLink(context.Background(), bucketName, key)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to prepare upload"})
		}
		out.Uploads = append(out.Uploads, models.RefUploadOut{FileName: name, Key: key, UploadUrl: uploadUrl})
	}
	return c.JSON(http.StatusOK, out)
}

// rehostUrls downloads external images and re-uploads them to R2 under the
// item's ref prefix. Returns the new keys.
func (controller *ItemController) rehostUrls(ctx context.Context, userID uint, urls []string) ([]string, error) {
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	var keys []string
	for _, rawUrl := range urls {
		clean := services.CanonicalUploadName(rawUrl)
		if !services.IsAllowedImageName(clean) {
			clean = clean + ".jpg"
		}
		content, err := services.ReadFileFromUrl(rawUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %v", rawUrl, err)
		}
		key := fmt.Sprintf("itemrefs/%d/%s", userID, clean)
		uploadUrl, err := controller.AWSService.PresignLink(ctx, bucketName, key)
		if err != nil {
			return nil, fmt.Errorf("failed to presign %s: %v", key, err)
		}
		if _, _, err := controller.AWSService.UploadToPresignedURL(ctx, bucketName, uploadUrl, content); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %v", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (controller *ItemController) ImportUrls(c echo.Context) error {
	item, err := controller.fetchOwnItem(c)
	if err != nil {
		return err
	}
	var req models.ItemImportUrlsIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	keys, err := controller.rehostUrls(c.Request().Context(), user.ID, req.Urls)
	if err != nil {
		fmt.Printf("[Item: %v] url import failed: %v\n", item.ID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to import one or more images"})
	}
	item.RefImageKeys = services.DedupeReferenceKeys(append(item.RefImageKeys, keys...))
	item.Status = "saved"
	if err := db.Save(item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save item"})
	}
	fmt.Printf("[Item: %v] imported %d external images\n", item.ID, len(keys))
	return c.JSON(http.StatusOK, controller.presentItem(c.Request().Context(), *item))
}

// DetectItemType runs the vision model over the item's reference images and
// stores the detected free-text type on the item.
func (controller *ItemController) DetectItemType(c echo.Context) error {
	item, err := controller.fetchOwnItem(c)
	if err != nil {
		return err
	}
	db := c.Get("__db").(*gorm.DB)

	if len(item.RefImageKeys) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Item has no reference images"})
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
			fmt.Printf("[Item: %v] failed to fetch ref %s: %v\n", item.ID, key, err)
			continue
		}
		images = append(images, services.VisionImage{Data: content})
	}
	if len(images) == 0 {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Could not load item reference images"})
	}

	itemType, err := controller.Vision.DetectItemType(ctx, images)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Item type detection failed, please set it manually"})
	}
	item.ItemType = itemType
	if err := db.Save(item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save item"})
	}
	return c.JSON(http.StatusOK, ItemTypeDetectOut{
		ItemType: itemType,
		Category: string(services.InferItemCategory(itemType)),
	})
}

func (controller *ItemController) SearchShopify(c echo.Context) error {
	var req struct {
		Query string `json:"query" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	products, err := controller.Shopify.SearchProducts(c.Request().Context(), req.Query)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Catalog search failed"})
	}
	return c.JSON(http.StatusOK, products)
}

// ImportFromShopify pulls the product's images into the item reference set.
func (controller *ItemController) ImportFromShopify(c echo.Context) error {
	item, err := controller.fetchOwnItem(c)
	if err != nil {
		return err
	}
	var req ShopifyImportIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	product, err := controller.Shopify.GetProduct(c.Request().Context(), req.ProductID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch product"})
	}
	var urls []string
	for _, img := range product.Images {
		urls = append(urls, img.Src)
	}
	if len(urls) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Product has no images"})
	}
	keys, err := controller.rehostUrls(c.Request().Context(), user.ID, urls)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to import product images"})
	}
	item.RefImageKeys = pq.StringArray(services.DedupeReferenceKeys(append(item.RefImageKeys, keys...)))
	item.Status = "saved"
	if err := db.Save(item).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save item"})
	}
	fmt.Printf("[Item: %v] imported %d images from product %v\n", item.ID, len(keys), product.ID)
	return c.JSON(http.StatusOK, controller.presentItem(c.Request().Context(), *item))
}

func (controller *ItemController) DropboxStatus(c echo.Context) error {
	if err := controller.Dropbox.Status(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "connected"})
}

func (controller *ItemController) SearchDropbox(c echo.Context) error {
	var req DropboxSearchIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	files, err := controller.Dropbox.SearchBarcode(c.Request().Context(), req.Barcode)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Dropbox search failed"})
	}
	return c.JSON(http.StatusOK, files)
}
