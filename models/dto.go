package models

type ModelProfileIn struct {
	Name         string   `json:"name" validate:"required"`
	Gender       string   `json:"gender" validate:"required,oneof=male female"`
	RefImageKeys []string `json:"ref_image_keys" validate:"required,min=3"`
}

type RefUploadRequestIn struct {
	FileNames []string `json:"file_names" validate:"required,min=1"`
}

type RefUploadOut struct {
	FileName  string `json:"file_name"`
	Key       string `json:"key"`
	UploadUrl string `json:"upload_url"`
}

type RefUploadRequestOut struct {
	Uploads []RefUploadOut `json:"uploads"`
}

type ItemIn struct {
	ItemType     string   `json:"item_type" validate:"required"`
	Barcode      string   `json:"barcode"`
	RefImageKeys []string `json:"ref_image_keys"`
}

type ItemImportUrlsIn struct {
	Urls []string `json:"urls" validate:"required,min=1"`
}

type GenerateBatchIn struct {
	ModelProfileID uint   `json:"model_profile_id" validate:"required"`
	ItemID         uint   `json:"item_id" validate:"required"`
	Panels         []int  `json:"panels" validate:"required,min=1,max=4,dive,min=1,max=4"`
	Mode           string `json:"mode" validate:"required,oneof=generate regenerate"`
	StyleNotes     string `json:"style_notes"`
	RegenNotes     string `json:"regen_notes"`
}

type PanelResultOut struct {
	Panel       int     `json:"panel"`
	Status      string  `json:"status"`
	ImageUrl    *string `json:"image_url"`
	ViaFallback bool    `json:"via_fallback"`
	FailReason  *string `json:"fail_reason"`
	Approved    bool    `json:"approved"`
}

type PanelBatchOut struct {
	Id           uint             `json:"id"`
	Status       string           `json:"status"`
	Mode         string           `json:"mode"`
	ErrorMessage *string          `json:"error_message"`
	Panels       []PanelResultOut `json:"panels"`
}

type SplitCropOut struct {
	Side       string  `json:"side"`
	PoseNumber int     `json:"pose_number"`
	FileName   string  `json:"file_name"`
	ImageUrl   *string `json:"image_url"`
}

type ShopifyPushIn struct {
	ProductID int64 `json:"product_id" validate:"required"`
}

type PoseScanIn struct {
	ItemID  uint     `json:"item_id" validate:"required"`
	Genders []string `json:"genders" validate:"required,min=1,dive,oneof=male female"`
}
