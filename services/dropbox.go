package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DropboxFile is one match from a barcode folder search.
type DropboxFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Link string `json:"link,omitempty"`
}

// DropboxProvider is the shared-drive collaborator holding raw shoot files.
type DropboxProvider interface {
	Status(ctx context.Context) error
	SearchBarcode(ctx context.Context, barcode string) ([]DropboxFile, error)
}

type DropboxService struct {
	AccessToken string
	Client      *http.Client
}

func NewDropboxService() *DropboxService {
	return &DropboxService{
		AccessToken: GetEnv("DROPBOX_ACCESS_TOKEN", ""),
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *DropboxService) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling dropbox request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := s.Client.Do(req)
	if err != nil {
		return &TransportError{Message: fmt.Sprintf("dropbox request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("dropbox %s: status %d: %s", endpoint, resp.StatusCode, raw)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Message: fmt.Sprintf("error decoding dropbox response: %v", err)}
	}
	return nil
}

// Status verifies the token is alive before the UI offers Dropbox import.
func (s *DropboxService) Status(ctx context.Context) error {
	if s.AccessToken == "" {
		return fmt.Errorf("dropbox access token not configured")
	}
	var out struct {
		Email string `json:"email"`
	}
	err := s.post(ctx, "https://api.dropboxapi.com/2/users/get_current_account", nil, &out)
	if err != nil {
		return err
	}
	fmt.Printf("[Dropbox] connected as %s\n", out.Email)
	return nil
}

// SearchBarcode finds shoot images filed under the normalized barcode and
// resolves a temporary direct link for each image match.
func (s *DropboxService) SearchBarcode(ctx context.Context, barcode string) ([]DropboxFile, error) {
	barcode = SanitizeBarcode(barcode)
	if !ValidBarcode(barcode) {
		return nil, fmt.Errorf("invalid barcode %q", barcode)
	}

	searchBody := map[string]any{
		"query": barcode,
		"options": map[string]any{
			"max_results":   25,
			"file_status":   "active",
			"filename_only": true,
		},
	}
	var searchOut struct {
		Matches []struct {
			Metadata struct {
				Metadata struct {
					Name        string `json:"name"`
					PathDisplay string `json:"path_display"`
				} `json:"metadata"`
			} `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.post(ctx, "https://api.dropboxapi.com/2/files/search_v2", searchBody, &searchOut); err != nil {
		return nil, err
	}

	var files []DropboxFile
	for _, m := range searchOut.Matches {
		name := m.Metadata.Metadata.Name
		if !IsAllowedImageName(strings.ToLower(name)) {
			continue
		}
		file := DropboxFile{Name: name, Path: m.Metadata.Metadata.PathDisplay}
		var linkOut struct {
			Link string `json:"link"`
		}
		err := s.post(ctx, "https://api.dropboxapi.com/2/files/get_temporary_link", map[string]string{"path": file.Path}, &linkOut)
		if err != nil {
			fmt.Printf("[Dropbox] no temporary link for %s: %v\n", file.Path, err)
		} else {
			file.Link = linkOut.Link
		}
		files = append(files, file)
	}
	fmt.Printf("[Dropbox] barcode %s matched %d image files\n", barcode, len(files))
	return files, nil
}
