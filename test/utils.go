package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"lookboardapi/models"
	"lookboardapi/services"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func NewRefString(data string) *string {
	return &data
}

func IntPointer(i int) *int {
	return &i
}

func FakeUser(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:   "OurName",
		Email:  "email@example.com",
		LastIp: "123.122.122.122",
	}
	db.Create(&user)
	return user
}

func FakeModelProfile(db *gorm.DB, owner *models.UserAccount, gender string) *models.ModelProfile {
	profile := &models.ModelProfile{
		Name:         "Test Model",
		Gender:       gender,
		OwnerID:      owner.ID,
		RefImageKeys: []string{"modelrefs/1/a.png", "modelrefs/1/b.png", "modelrefs/1/c.png"},
		Status:       "ready",
	}
	db.Create(&profile)
	return profile
}

func FakeItem(db *gorm.DB, owner *models.UserAccount, itemType string) *models.Item {
	item := &models.Item{
		OwnerID:      owner.ID,
		ItemType:     itemType,
		Barcode:      "1234567",
		RefImageKeys: []string{"itemrefs/1/front.png"},
		Status:       "saved",
	}
	db.Create(&item)
	return item
}

type AWSProviderMock struct {
	MockUrl  string
	MockKeys []string
	Deleted  []string
}

func (awsService AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {
	return awsService.MockUrl, nil
}

func (awsService AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return awsService.MockUrl, nil
}

func (awsService AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, http.StatusOK, nil
}

func (awsService *AWSProviderMock) ListObjects(ctx context.Context, bucketName, prefix string) ([]string, error) {
	var keys []string
	for _, key := range awsService.MockKeys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (awsService *AWSProviderMock) DeleteObject(ctx context.Context, bucketName, fileKey string) error {
	awsService.Deleted = append(awsService.Deleted, fileKey)
	return nil
}

type URLCacheMock struct {
	MockUrl string
}

func (m URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	return m.MockUrl, nil
}

// GenerationProviderMock scripts per-panel outcomes by the PanelQa sent with
// each request. Keys are "panel" or "panel-fallback".
type GenerationProviderMock struct {
	Refusals map[string]bool
	Failures map[string]string
	Calls    []services.GenerationRequest
}

func (m *GenerationProviderMock) GeneratePanel(ctx context.Context, req services.GenerationRequest) (string, error) {
	m.Calls = append(m.Calls, req)
	key := fmt.Sprintf("%d", req.PanelQa.Panel)
	if req.PanelQa.ViaFallback {
		key = fmt.Sprintf("%d-fallback", req.PanelQa.Panel)
	}
	if m.Refusals[key] {
		return "", &services.PolicyRefusalError{Message: "blocked by safety moderation"}
	}
	if msg, ok := m.Failures[key]; ok {
		return "", &services.TransportError{Message: msg}
	}
	return services.EncodeBase64([]byte("png-" + key)), nil
}

type VisionMock struct {
	ItemType string
	Report   *services.PoseScanReport
}

func (m VisionMock) DetectItemType(ctx context.Context, images []services.VisionImage) (string, error) {
	return m.ItemType, nil
}

func (m VisionMock) ScanPoses(ctx context.Context, images []services.VisionImage, itemType string, genders []string) (*services.PoseScanReport, error) {
	return m.Report, nil
}

type ShopifyMock struct {
	Products []services.ShopifyProduct
	Pushed   []string
}

func (m *ShopifyMock) SearchProducts(ctx context.Context, query string) ([]services.ShopifyProduct, error) {
	return m.Products, nil
}

func (m *ShopifyMock) GetProduct(ctx context.Context, productID int64) (*services.ShopifyProduct, error) {
	for i := range m.Products {
		if m.Products[i].ID == productID {
			return &m.Products[i], nil
		}
	}
	return nil, fmt.Errorf("product %d not found", productID)
}

func (m *ShopifyMock) PushImage(ctx context.Context, productID int64, imageBase64 string, fileName string) (*services.ShopifyImage, error) {
	m.Pushed = append(m.Pushed, fileName)
	return &services.ShopifyImage{ID: int64(len(m.Pushed)), Src: "https://cdn.example.com/" + fileName}, nil
}

func (m *ShopifyMock) DeleteImage(ctx context.Context, productID, imageID int64) error {
	return nil
}

type DropboxMock struct {
	Files []services.DropboxFile
}

func (m DropboxMock) Status(ctx context.Context) error {
	return nil
}

func (m DropboxMock) SearchBarcode(ctx context.Context, barcode string) ([]services.DropboxFile, error) {
	return m.Files, nil
}
