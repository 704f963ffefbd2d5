package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ShopifyProduct is the subset of the Admin REST product we work with.
type ShopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Images   []ShopifyImage   `json:"images"`
	Variants []ShopifyVariant `json:"variants"`
}

type ShopifyImage struct {
	ID       int64  `json:"id"`
	Src      string `json:"src"`
	Position int    `json:"position"`
}

type ShopifyVariant struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Barcode string `json:"barcode"`
}

// ShopifyProvider is the storefront catalog collaborator.
type ShopifyProvider interface {
	SearchProducts(ctx context.Context, query string) ([]ShopifyProduct, error)
	GetProduct(ctx context.Context, productID int64) (*ShopifyProduct, error)
	PushImage(ctx context.Context, productID int64, imageBase64 string, fileName string) (*ShopifyImage, error)
	DeleteImage(ctx context.Context, productID, imageID int64) error
}

// ShopifyService talks to the Admin REST API of one store.
type ShopifyService struct {
	StoreDomain string // e.g. my-store.myshopify.com
	AccessToken string
	APIVersion  string
	Client      *http.Client
}

func NewShopifyService() *ShopifyService {
	return &ShopifyService{
		StoreDomain: GetEnv("SHOPIFY_STORE_DOMAIN", ""),
		AccessToken: GetEnv("SHOPIFY_ADMIN_TOKEN", ""),
		APIVersion:  GetEnv("SHOPIFY_API_VERSION", "2024-07"),
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ShopifyService) endpoint(path string) string {
	return fmt.Sprintf("https://%s/admin/api/%s%s", s.StoreDomain, s.APIVersion, path)
}

func (s *ShopifyService) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling shopify request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", s.AccessToken)

	resp, err := s.Client.Do(req)
	if err != nil {
		return &TransportError{Message: fmt.Sprintf("shopify request failed: %v", err)}
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &TransportError{Message: fmt.Sprintf("shopify returned non-JSON response (status %d): %s", resp.StatusCode, snippet)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("shopify %s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Message: fmt.Sprintf("error decoding shopify response: %v", err)}
	}
	return nil
}

// SearchProducts matches by title, or by variant barcode when the query
// looks like one of our barcodes.
func (s *ShopifyService) SearchProducts(ctx context.Context, query string) ([]ShopifyProduct, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty catalog search query")
	}
	var resp struct {
		Products []ShopifyProduct `json:"products"`
	}
	path := "/products.json?limit=50&title=" + url.QueryEscape(query)
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if ValidBarcode(SanitizeBarcode(query)) {
		barcode := SanitizeBarcode(query)
		filtered := resp.Products[:0]
		for _, p := range resp.Products {
			for _, v := range p.Variants {
				if SanitizeBarcode(v.Barcode) == barcode {
					filtered = append(filtered, p)
					break
				}
			}
		}
		if len(filtered) > 0 {
			resp.Products = filtered
		}
	}
	fmt.Printf("[Shopify] search %q matched %d products\n", query, len(resp.Products))
	return resp.Products, nil
}

func (s *ShopifyService) GetProduct(ctx context.Context, productID int64) (*ShopifyProduct, error) {
	var resp struct {
		Product ShopifyProduct `json:"product"`
	}
	if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d.json", productID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// PushImage attaches one split crop to the product as a new media image.
func (s *ShopifyService) PushImage(ctx context.Context, productID int64, imageBase64 string, fileName string) (*ShopifyImage, error) {
	body := map[string]any{
		"image": map[string]any{
			"attachment": StripDataURLPrefix(imageBase64),
			"filename":   fileName,
		},
	}
	var resp struct {
		Image ShopifyImage `json:"image"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/images.json", productID), body, &resp); err != nil {
		return nil, err
	}
	fmt.Printf("[Shopify] pushed image %v to product %v\n", resp.Image.ID, productID)
	return &resp.Image, nil
}

func (s *ShopifyService) DeleteImage(ctx context.Context, productID, imageID int64) error {
	return s.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d/images/%d.json", productID, imageID), nil, nil)
}
