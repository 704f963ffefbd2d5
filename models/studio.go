package models

import "github.com/lib/pq"

// ModelProfile is a catalog model identity. Reference keys point at R2
// objects; identity is immutable once the profile leaves draft.
type ModelProfile struct {
	JsonModel
	Name         string         `json:"name"`
	Gender       string         `json:"gender"` // male, female
	Owner        UserAccount    `json:"-"`
	OwnerID      uint           `json:"-"`
	RefImageKeys pq.StringArray `gorm:"type:text[]" json:"ref_image_keys"`
	Status       string         `json:"status"` // draft, ready
}

// Item is one garment working set: references, free-text type, barcode.
type Item struct {
	JsonModel
	Owner        UserAccount    `json:"-"`
	OwnerID      uint           `json:"-"`
	ItemType     string         `json:"item_type"`
	Barcode      string         `json:"barcode"`
	RefImageKeys pq.StringArray `gorm:"type:text[]" json:"ref_image_keys"`
	Status       string         `json:"status"` // draft, saved
	// PoseSafetyNotes holds the last pose-scan suggestions as JSON keyed
	// "gender-pose". Applied to every later batch over this item.
	PoseSafetyNotes *string `gorm:"type:text" json:"-"`
}

// PanelBatch is one queued generation run over 1-4 panels.
type PanelBatch struct {
	JsonModel
	Owner           UserAccount   `json:"-"`
	OwnerID         uint          `json:"-"`
	ModelProfileID  uint          `json:"model_profile_id"`
	ModelProfile    ModelProfile  `json:"model_profile"`
	ItemID          uint          `json:"item_id"`
	Item            Item          `json:"item"`
	LockKey         string        `gorm:"index" json:"-"`
	Mode            string        `json:"mode"` // generate, regenerate
	RequestedPanels pq.Int64Array `gorm:"type:bigint[]" json:"requested_panels"`
	StyleNotes      *string       `gorm:"type:text" json:"style_notes"`
	RegenNotes      *string       `gorm:"type:text" json:"regen_notes"`
	Status          string        `json:"status"` // pending, running, completed, failed
	ErrorMessage    *string       `gorm:"type:text" json:"error_message"`
	Duration        *float64      `json:"duration"` // in seconds
}

// PanelResult is one panel slot of a batch. Overwritten image keys come
// from regeneration under the same lock key.
type PanelResult struct {
	JsonModel
	PanelBatchID uint       `gorm:"index" json:"panel_batch_id"`
	PanelBatch   PanelBatch `json:"-"`
	Panel        int        `json:"panel"`  // 1..4
	Status       string     `json:"status"` // succeeded, failed
	ImageKey     *string    `json:"image_key"`
	ViaFallback  bool       `json:"via_fallback"`
	FailReason   *string    `gorm:"type:text" json:"fail_reason"`
	Approved     bool       `gorm:"default:false" json:"approved"`
}

// PanelHistory is append-only: one row per panel ever completed under a
// lock key. Regeneration is refused for panels with no row here.
type PanelHistory struct {
	JsonModel
	ModelProfileID uint   `json:"model_profile_id"`
	LockKey        string `gorm:"index:idx_panel_history_lock" json:"lock_key"`
	Panel          int    `gorm:"index:idx_panel_history_lock" json:"panel"`
}

// SplitCrop is one 900x1200 half of an approved panel.
type SplitCrop struct {
	JsonModel
	PanelResultID uint        `gorm:"index" json:"panel_result_id"`
	PanelResult   PanelResult `json:"-"`
	Side          string      `json:"side"` // left, right
	PoseNumber    int         `json:"pose_number"`
	FileName      string      `json:"file_name"`
	ImageKey      string      `json:"image_key"`
	PushedImageID *int64      `json:"pushed_image_id"` // storefront media id after push
}
