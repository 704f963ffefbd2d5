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

// PanelQA travels with every generation request so the backend can log which
// panel/pose combination produced an image.
type PanelQA struct {
	Panel       int    `json:"panel"`
	Gender      string `json:"gender"`
	ItemType    string `json:"itemType"`
	PoseLeft    int    `json:"poseLeft"`
	PoseRight   int    `json:"poseRight"`
	ViaFallback bool   `json:"viaFallback"`
}

type GenerationRequest struct {
	Prompt    string   `json:"prompt"`
	Size      string   `json:"size"`
	ModelRefs []string `json:"modelRefs"`
	ItemRefs  []string `json:"itemRefs"`
	PanelQa   PanelQA  `json:"panelQa"`
}

// GenerationProvider is the outbound contract of the image generation
// collaborator. Returns the generated panel as base64 PNG.
type GenerationProvider interface {
	GeneratePanel(ctx context.Context, req GenerationRequest) (string, error)
}

// PolicyRefusalError is a generation attempt the backend refused on content
// policy grounds. It is the signal for the panel 3/4 fallback retry.
type PolicyRefusalError struct {
	Message string
}

func (e *PolicyRefusalError) Error() string {
	return fmt.Sprintf("policy_refusal: %s", e.Message)
}

// TransportError marks fetch-level failures (network, non-JSON proxy pages).
// Only these are retried once by the client.
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// moderationSignatures is the legacy string-matching path for backends that
// return refusals as plain error text. Keep this list centralized; prefer the
// structured {error:{type:"policy_refusal"}} shape whenever present.
var moderationSignatures = []string{
	"policy_refusal",
	"content policy",
	"blocked by safety moderation",
	"moderation blocked",
	"safety_violations=[sexual]",
}

// IsModerationRefusal reports whether an error is a content-policy refusal,
// via the typed error or the legacy message-pattern fallback.
func IsModerationRefusal(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*PolicyRefusalError); ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range moderationSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// HTTPGenerationClient talks to the generation endpoint over HTTPS JSON.
type HTTPGenerationClient struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPGenerationClient(endpoint string) *HTTPGenerationClient {
	return &HTTPGenerationClient{
		Endpoint: endpoint,
		// generation calls routinely run minutes; no client timeout, the
		// caller's context bounds the wait
		Client: &http.Client{},
	}
}

// generationResponse covers both the success and the two failure shapes the
// endpoint emits. `error` may be a bare string or a {type,message} object.
type generationResponse struct {
	ImageBase64 string          `json:"imageBase64"`
	Degraded    bool            `json:"degraded"`
	Warning     string          `json:"warning"`
	Details     string          `json:"details"`
	Error       json.RawMessage `json:"error"`
}

type structuredGenerationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (client *HTTPGenerationClient) GeneratePanel(ctx context.Context, req GenerationRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %v", err)
	}

	resp, err := client.post(ctx, body)
	if err != nil {
		// one retry for transport failures only, business errors propagate
		if _, transport := err.(*TransportError); !transport {
			return "", err
		}
		fmt.Printf("[Generate] Transport failure, retrying once: %v\n", err)
		time.Sleep(500 * time.Millisecond)
		resp, err = client.post(ctx, body)
		if err != nil {
			return "", err
		}
	}
	return interpretGenerationResponse(resp)
}

func (client *HTTPGenerationClient) post(ctx context.Context, body []byte) (*generationResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", client.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("failed to fetch generation endpoint: %v", err)}
	}
	defer resp.Body.Close()

	// Proxy HTML error pages are not business failures; surface them as a
	// distinct transport error so the retry path applies.
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &TransportError{Message: fmt.Sprintf("generation endpoint returned non-JSON response (status %d, content-type %q): %s", resp.StatusCode, contentType, string(snippet))}
	}

	var parsed generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("failed to decode generation response: %v", err)}
	}
	return &parsed, nil
}

func interpretGenerationResponse(resp *generationResponse) (string, error) {
	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		var structured structuredGenerationError
		if err := json.Unmarshal(resp.Error, &structured); err == nil && structured.Type != "" {
			if structured.Type == "policy_refusal" {
				return "", &PolicyRefusalError{Message: structured.Message}
			}
			return "", fmt.Errorf("generation failed: %s: %s", structured.Type, structured.Message)
		}
		var plain string
		if err := json.Unmarshal(resp.Error, &plain); err == nil {
			if resp.Details != "" {
				return "", fmt.Errorf("generation failed: %s (%s)", plain, resp.Details)
			}
			return "", fmt.Errorf("generation failed: %s", plain)
		}
		return "", fmt.Errorf("generation failed: %s", string(resp.Error))
	}
	// success-shaped but unusable
	if resp.Degraded {
		if resp.Warning != "" {
			return "", fmt.Errorf("generation degraded: %s", resp.Warning)
		}
		return "", fmt.Errorf("generation degraded: backend produced no usable image")
	}
	if resp.ImageBase64 == "" {
		return "", fmt.Errorf("generation returned empty image")
	}
	return StripDataURLPrefix(resp.ImageBase64), nil
}

// StripDataURLPrefix removes a leading data:image/...;base64, prefix if the
// collaborator returned a data URL instead of bare base64.
func StripDataURLPrefix(b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		if i := strings.Index(b64, ","); i >= 0 {
			return b64[i+1:]
		}
	}
	return b64
}
