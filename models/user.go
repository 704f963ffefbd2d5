package models

type UserAccount struct {
	JsonModel
	Name     string `json:"name"`
	Email    string `json:"email" gorm:"unique"`
	Password string `json:"-"`
	Banned   bool   `gorm:"default:false" json:"-"`
	LastIp   string `json:"-"`
	// overrides the global daily panel generation limit when set
	EnforcedDailyPanelLimit *int `json:"-"`
	IsSuperadmin            bool `json:"is_superadmin"`
}
