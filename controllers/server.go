package controllers

import (
	"context"
	"log"
	"net/http"
	"os"

	"lookboardapi/services"

	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	awsService services.AWSServiceProvider,
	urlCache services.URLCacheServiceProvider,
	visionService services.VisionProvider,
	shopifyService services.ShopifyProvider,
	dropboxService services.DropboxProvider,
	asynqClient *asynq.Client,
	asynqInspector *asynq.Inspector,
) *echo.Echo {

	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			c.Set("__asynqinspector", asynqInspector)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	authGroup := e.Group("auth")
	authController := AuthController{}
	authController.AuthRoutes(authGroup)

	studioGroup := e.Group("studio", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))))
	studioGroup.Use(UserMiddleware)

	modelController := ModelProfileController{AWSService: awsService, URLCache: urlCache}
	modelGroup := studioGroup.Group("/models")
	modelController.ModelProfileRoutes(modelGroup)

	itemController := ItemController{
		AWSService: awsService,
		URLCache:   urlCache,
		Vision:     visionService,
		Shopify:    shopifyService,
		Dropbox:    dropboxService,
	}
	itemGroup := studioGroup.Group("/items")
	itemController.ItemRoutes(itemGroup)

	panelController := PanelController{
		AWSService: awsService,
		URLCache:   urlCache,
		Vision:     visionService,
		Shopify:    shopifyService,
	}
	panelGroup := studioGroup.Group("/panels")
	panelController.PanelRoutes(panelGroup)

	storageController := StorageController{AWSService: awsService}
	storageGroup := studioGroup.Group("/storage", SuperadminMiddleware)
	storageController.StorageRoutes(storageGroup)

	return e
}
