package dbhelper

import (
	"log"
	"lookboardapi/models"

	"gorm.io/gorm"
)

func SetupCleaner(db *gorm.DB) func() {

	return func() {

		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.SplitCrop{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PanelResult{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PanelHistory{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PanelBatch{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Item{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.ModelProfile{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.UserAccount{})

	}
}

func Migrate(db *gorm.DB, model interface{}) {
	err := db.AutoMigrate(model)
	if err != nil {
		log.Printf("Error while migrating %s", model)
		log.Fatal(err)
	}
}
