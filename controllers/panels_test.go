package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"lookboardapi/dbhelper"
	"lookboardapi/models"
	"lookboardapi/services"
	"lookboardapi/test"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBatchUnauthorized(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)

	req := test.NewJSONRequest("POST", "/studio/panels/generate", models.GenerateBatchIn{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateBatchModelNotFound(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	reqBody := models.GenerateBatchIn{
		ModelProfileID: 9999,
		ItemID:         9999,
		Panels:         []int{1},
		Mode:           "generate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Model not found", response["error"])
}

func TestGenerateBatchOwnershipEnforced(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)

	owner := test.FakeUser(db)
	profile := test.FakeModelProfile(db, owner, "female")
	item := test.FakeItem(db, owner, "hoodie")

	other := models.UserAccount{Name: "Other", Email: "other@example.com"}
	db.Create(&other)

	reqBody := models.GenerateBatchIn{
		ModelProfileID: profile.ID,
		ItemID:         item.ID,
		Panels:         []int{1},
		Mode:           "generate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(other.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateBatchItemTypeRequired(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "")

	reqBody := models.GenerateBatchIn{
		ModelProfileID: profile.ID,
		ItemID:         item.ID,
		Panels:         []int{1, 2},
		Mode:           "generate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Item type is required before generating", response["error"])
}

func TestGenerateBatchBlockedSensitivityCategory(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "lace bra")

	reqBody := models.GenerateBatchIn{
		ModelProfileID: profile.ID,
		ItemID:         item.ID,
		Panels:         []int{1},
		Mode:           "generate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerateBatchRegenerateWithoutHistory(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	// history exists for panel 1 only, under the current lock key
	lockKey := services.BuildPanelLockKey(profile.ID, item.ItemType, item.RefImageKeys)
	db.Create(&models.PanelHistory{ModelProfileID: profile.ID, LockKey: lockKey, Panel: 1})

	reqBody := models.GenerateBatchIn{
		ModelProfileID: profile.ID,
		ItemID:         item.ID,
		Panels:         []int{1, 3},
		Mode:           "regenerate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "Panel 3 was never generated")
}

func TestGenerateBatchDailyLimit(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	user.EnforcedDailyPanelLimit = test.IntPointer(0)
	db.Save(user)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	reqBody := models.GenerateBatchIn{
		ModelProfileID: profile.ID,
		ItemID:         item.ID,
		Panels:         []int{1},
		Mode:           "generate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "daily generation batches")
}

func TestGenerateBatchInvalidPanelNumbers(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	reqBody := models.GenerateBatchIn{
		ModelProfileID: 1,
		ItemID:         1,
		Panels:         []int{5},
		Mode:           "generate",
	}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatchWithResults(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	mockUrl := "https://cdn.example.com/panel.png"
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{MockUrl: mockUrl}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	batch := models.PanelBatch{
		OwnerID:         user.ID,
		ModelProfileID:  profile.ID,
		ItemID:          item.ID,
		LockKey:         services.BuildPanelLockKey(profile.ID, item.ItemType, item.RefImageKeys),
		Mode:            "generate",
		RequestedPanels: pq.Int64Array{3},
		Status:          "completed",
	}
	db.Create(&batch)
	result := models.PanelResult{
		PanelBatchID: batch.ID,
		Panel:        3,
		Status:       "succeeded",
		ImageKey:     StrPointer("panels/1/panel-3.png"),
		ViaFallback:  true,
	}
	db.Create(&result)

	req := test.NewJSONAuthRequest("GET", fmt.Sprintf("/studio/panels/batches/%v", batch.ID), strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response models.PanelBatchOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "completed", response.Status)
	require.Len(t, response.Panels, 1)
	assert.Equal(t, 3, response.Panels[0].Panel)
	assert.True(t, response.Panels[0].ViaFallback)
	require.NotNil(t, response.Panels[0].ImageUrl)
	assert.Equal(t, mockUrl, *response.Panels[0].ImageUrl)
}

func TestToggleApprove(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	batch := models.PanelBatch{
		OwnerID:         user.ID,
		ModelProfileID:  profile.ID,
		ItemID:          item.ID,
		LockKey:         "k",
		Mode:            "generate",
		RequestedPanels: pq.Int64Array{1},
		Status:          "completed",
	}
	db.Create(&batch)
	result := models.PanelResult{
		PanelBatchID: batch.ID,
		Panel:        1,
		Status:       "succeeded",
		ImageKey:     StrPointer("panels/1/panel-1.png"),
	}
	db.Create(&result)

	target := fmt.Sprintf("/studio/panels/results/%v/approve", result.ID)
	userPk := strconv.FormatUint(uint64(user.ID), 10)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONAuthRequest("POST", target, userPk, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var response map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response["approved"])

	// toggling again reverts
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, test.NewJSONAuthRequest("POST", target, userPk, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response["approved"])
}

func TestToggleApproveFailedPanel(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	batch := models.PanelBatch{
		OwnerID:         user.ID,
		ModelProfileID:  profile.ID,
		ItemID:          item.ID,
		LockKey:         "k",
		Mode:            "generate",
		RequestedPanels: pq.Int64Array{2},
		Status:          "failed",
	}
	db.Create(&batch)
	result := models.PanelResult{
		PanelBatchID: batch.ID,
		Panel:        2,
		Status:       "failed",
		FailReason:   StrPointer("connection reset"),
	}
	db.Create(&result)

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/studio/panels/results/%v/approve", result.ID), strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSplitResultRequiresApproval(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	batch := models.PanelBatch{
		OwnerID:         user.ID,
		ModelProfileID:  profile.ID,
		ItemID:          item.ID,
		LockKey:         "k",
		Mode:            "generate",
		RequestedPanels: pq.Int64Array{1},
		Status:          "completed",
	}
	db.Create(&batch)
	result := models.PanelResult{
		PanelBatchID: batch.ID,
		Panel:        1,
		Status:       "succeeded",
		ImageKey:     StrPointer("panels/1/panel-1.png"),
		Approved:     false,
	}
	db.Create(&result)

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/studio/panels/results/%v/split", result.ID), strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListCrops(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	mockUrl := "https://cdn.example.com/crop.png"
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{MockUrl: mockUrl}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")
	item := test.FakeItem(db, user, "hoodie")

	batch := models.PanelBatch{
		OwnerID:         user.ID,
		ModelProfileID:  profile.ID,
		ItemID:          item.ID,
		LockKey:         "k",
		Mode:            "generate",
		RequestedPanels: pq.Int64Array{3},
		Status:          "completed",
	}
	db.Create(&batch)
	result := models.PanelResult{
		PanelBatchID: batch.ID,
		Panel:        3,
		Status:       "succeeded",
		ImageKey:     StrPointer("panels/1/panel-3.png"),
		Approved:     true,
	}
	db.Create(&result)
	db.Create(&models.SplitCrop{
		PanelResultID: result.ID,
		Side:          "left",
		PoseNumber:    7,
		FileName:      "1234567_panel3_pose7_left.png",
		ImageKey:      "crops/1/1234567_panel3_pose7_left.png",
	})
	db.Create(&models.SplitCrop{
		PanelResultID: result.ID,
		Side:          "right",
		PoseNumber:    5,
		FileName:      "1234567_panel3_pose5_right.png",
		ImageKey:      "crops/1/1234567_panel3_pose5_right.png",
	})

	req := test.NewJSONAuthRequest("GET", fmt.Sprintf("/studio/panels/results/%v/crops", result.ID), strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response []models.SplitCropOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.Equal(t, "left", response[0].Side)
	assert.Equal(t, 7, response[0].PoseNumber)
	assert.Equal(t, "right", response[1].Side)
	assert.Equal(t, 5, response[1].PoseNumber)
	require.NotNil(t, response[0].ImageUrl)
	assert.Equal(t, mockUrl, *response[0].ImageUrl)
}

func TestPoseScan(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake image bytes"))
	}))
	defer fileServer.Close()

	report := &services.PoseScanReport{
		Female: []services.PoseScanEntry{
			{Pose: 7, Name: "Seated on cube", Status: "red", Issue: "hem rides up", Suggestion: "keep the hem draped over the knee"},
			{Pose: 1, Name: "Relaxed standing", Status: "green"},
		},
	}
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{MockUrl: fileServer.URL}, test.VisionMock{Report: report}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	item := test.FakeItem(db, user, "summer dress")

	reqBody := models.PoseScanIn{ItemID: item.ID, Genders: []string{"female"}}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/pose-scan", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response services.PoseScanReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Female, 2)
	assert.Equal(t, "red", response.Female[0].Status)

	var saved models.Item
	db.First(&saved, item.ID)
	require.NotNil(t, saved.PoseSafetyNotes)
	assert.JSONEq(t, `{"female-7":"keep the hem draped over the knee"}`, *saved.PoseSafetyNotes)
}

func TestPoseScanClearsNotesWhenAllGreen(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake image bytes"))
	}))
	defer fileServer.Close()

	report := &services.PoseScanReport{
		Female: []services.PoseScanEntry{{Pose: 1, Name: "Relaxed standing", Status: "green"}},
	}
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{MockUrl: fileServer.URL}, test.VisionMock{Report: report}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	item := test.FakeItem(db, user, "summer dress")
	stale := `{"female-7":"old note"}`
	item.PoseSafetyNotes = &stale
	db.Save(item)

	reqBody := models.PoseScanIn{ItemID: item.ID, Genders: []string{"female"}}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/pose-scan", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var saved models.Item
	db.First(&saved, item.ID)
	assert.Nil(t, saved.PoseSafetyNotes)
}

func TestPoseScanItemNotFound(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	reqBody := models.PoseScanIn{ItemID: 9999, Genders: []string{"female"}}
	req := test.NewJSONAuthRequest("POST", "/studio/panels/pose-scan", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
