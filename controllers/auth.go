package controllers

import (
	"fmt"
	"net/http"

	"lookboardapi/models"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthController struct {
}

func (controller *AuthController) AuthRoutes(g *echo.Group) {
	g.POST("/signin", controller.SignIn)
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (controller *AuthController) SignIn(c echo.Context) error {
	var req models.SignInRequest
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	db := c.Get("__db").(*gorm.DB)

	var user models.UserAccount
	db.First(&user, "email = ?", req.Email)
	if user.ID == 0 {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}
	if user.Banned {
		return c.JSON(http.StatusLocked, map[string]string{"error": "Account locked"})
	}

	user.LastIp = c.RealIP()
	db.Save(&user)

	return c.JSON(http.StatusOK, models.SignInOut{
		Id:          UIntToStr(user.ID),
		Email:       user.Email,
		AccessToken: GenerateUserToken(UIntToStr(user.ID), c, 72),
	})
}
