package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// VisionModelName is the GenAI model used for catalog image analysis.
type VisionModelName int32

const (
	VisionFlash25 VisionModelName = iota
	VisionFlashLite25
	VisionFlash20
)

func (t VisionModelName) String() string {
	switch t {
	case VisionFlash25:
		return "gemini-2.5-flash"
	case VisionFlashLite25:
		return "gemini-2.5-flash-lite-preview-06-17"
	case VisionFlash20:
		return "gemini-2.0-flash"
	default:
		return "gemini-2.0-flash"
	}
}

// PoseScanEntry is one row of the per-gender pose compatibility report.
type PoseScanEntry struct {
	Pose       int    `json:"pose"`
	Name       string `json:"name"`
	Status     string `json:"status"` // green or red
	Issue      string `json:"issue,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

type PoseScanReport struct {
	Female []PoseScanEntry `json:"female,omitempty"`
	Male   []PoseScanEntry `json:"male,omitempty"`
}

type VisionImage struct {
	Data     []byte
	MIMEType string
}

// VisionProvider analyzes item reference photos before a batch is queued.
type VisionProvider interface {
	DetectItemType(ctx context.Context, images []VisionImage) (string, error)
	ScanPoses(ctx context.Context, images []VisionImage, itemType string, genders []string) (*PoseScanReport, error)
}

type GoogleVisionService struct {
	APIKey string
	Model  VisionModelName
}

func NewGoogleVisionService() *GoogleVisionService {
	return &GoogleVisionService{
		APIKey: GetEnv("GOOGLE_API_KEY", ""),
		Model:  VisionFlash25,
	}
}

func floatPointer(f float32) *float32 {
	return &f
}

var jsonFenceRe = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.*?)\\s*```\\s*$")

// stripJSONFence removes the markdown code fence Gemini likes to wrap JSON in.
func stripJSONFence(text string) string {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

func (s *GoogleVisionService) newClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		fmt.Println("Error creating genai client:", err)
		return nil, fmt.Errorf("error creating genai client: %v", err)
	}
	return client, nil
}

func imageParts(images []VisionImage) []*genai.Part {
	var parts []*genai.Part
	for _, img := range images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     img.Data,
				MIMEType: mime,
			},
		})
	}
	return parts
}

const detectItemTypePrompt = `Look at the garment photos and answer with a single short lowercase noun phrase naming the item type, for example "dress", "hoodie", "sneakers", "leather belt". Name the one dominant item only. Do not add punctuation or any other words.`

// DetectItemType names the dominant garment across the reference photos.
// The returned phrase feeds InferItemCategory and the prompt builder as-is.
func (s *GoogleVisionService) DetectItemType(ctx context.Context, images []VisionImage) (string, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("no item images to analyze")
	}
	client, err := s.newClient(ctx)
	if err != nil {
		return "", err
	}

	parts := imageParts(images)
	parts = append(parts, &genai.Part{Text: detectItemTypePrompt})

	result, err := client.Models.GenerateContent(ctx, s.Model.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		MaxOutputTokens: 64,
		Temperature:     floatPointer(0),
	})
	if err != nil {
		fmt.Println("Error in GenerateContent (item type):", err)
		return "", fmt.Errorf("%v", err)
	}
	if result.PromptFeedback != nil {
		fmt.Println("[Vision] prompt blocked:", result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage)
		return "", fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}

	itemType := strings.ToLower(strings.TrimSpace(result.Text()))
	itemType = strings.Trim(itemType, ".\"'")
	if itemType == "" {
		return "", fmt.Errorf("empty item type response")
	}
	fmt.Printf("[Vision] detected item type: %q\n", itemType)
	return itemType, nil
}

const poseScanPromptTmpl = `You are checking whether a garment can be rendered in each studio pose without awkward occlusion or impossible draping. The item type is %q.

Pose library:
%s

For each gender in %v, rate every pose 1-8 as "green" (works as written) or "red" (conflicts with the garment). For red poses include a one sentence "issue" and a one sentence "suggestion" that keeps the pose silhouette but resolves the conflict.

Respond with JSON only, no markdown, shaped as:
{"female":[{"pose":1,"name":"...","status":"green"},...],"male":[...]}
Include only the genders requested.`

// ScanPoses rates every library pose against the garment per gender.
func (s *GoogleVisionService) ScanPoses(ctx context.Context, images []VisionImage, itemType string, genders []string) (*PoseScanReport, error) {
	if len(genders) == 0 {
		return nil, fmt.Errorf("no genders requested for pose scan")
	}
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	parts := imageParts(images)
	parts = append(parts, &genai.Part{
		Text: fmt.Sprintf(poseScanPromptTmpl, itemType, PoseLibraryText, genders),
	})

	result, err := client.Models.GenerateContent(ctx, s.Model.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		MaxOutputTokens: 4096,
		Temperature:     floatPointer(0),
	})
	if err != nil {
		fmt.Println("Error in GenerateContent (pose scan):", err)
		return nil, fmt.Errorf("%v", err)
	}
	if result.PromptFeedback != nil {
		fmt.Println("[Vision] prompt blocked:", result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage)
		return nil, fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}

	raw := stripJSONFence(result.Text())
	var report PoseScanReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		fmt.Println("Error parsing pose scan response:", err, raw)
		return nil, fmt.Errorf("error parsing pose scan response: %v", err)
	}
	fmt.Printf("[Vision] pose scan done: %d female, %d male entries\n", len(report.Female), len(report.Male))
	return &report, nil
}

// SafetySuggestions flattens red entries into the "gender-pose" keyed map
// the prompt builder consumes.
func (r *PoseScanReport) SafetySuggestions() map[string]string {
	out := map[string]string{}
	add := func(gender string, entries []PoseScanEntry) {
		for _, e := range entries {
			if e.Status == "red" && e.Suggestion != "" {
				out[fmt.Sprintf("%s-%d", gender, e.Pose)] = e.Suggestion
			}
		}
	}
	add("female", r.Female)
	add("male", r.Male)
	return out
}
