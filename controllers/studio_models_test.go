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
	"lookboardapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateModelOk(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{MockUrl: "https://cdn.example.com/ref.png"}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	reqBody := models.ModelProfileIn{
		Name:         "Alex",
		Gender:       "female",
		RefImageKeys: []string{"modelrefs/1/a.png", "modelrefs/1/b.png", "modelrefs/1/c.png"},
	}
	req := test.NewJSONAuthRequest("POST", "/studio/models/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, "Expected status code 201 Created, got %d", rec.Code)
	var response ModelProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Alex", response.Name)
	assert.Equal(t, "female", response.Gender)
	assert.Equal(t, "ready", response.Status)
	assert.Len(t, response.RefImageUrls, 3)
}

func TestCreateModelTooFewDistinctRefs(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	// three keys, two distinct
	reqBody := models.ModelProfileIn{
		Name:         "Alex",
		Gender:       "female",
		RefImageKeys: []string{"modelrefs/1/a.png", "modelrefs/1/a.png", "modelrefs/1/b.png"},
	}
	req := test.NewJSONAuthRequest("POST", "/studio/models/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "3 distinct reference images")
}

func TestCreateModelInvalidGender(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	reqBody := models.ModelProfileIn{
		Name:         "Alex",
		Gender:       "other",
		RefImageKeys: []string{"a.png", "b.png", "c.png"},
	}
	req := test.NewJSONAuthRequest("POST", "/studio/models/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListModelsScopedToOwner(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{MockUrl: "https://cdn.example.com/ref.png"}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)

	user := test.FakeUser(db)
	test.FakeModelProfile(db, user, "female")

	other := models.UserAccount{Name: "Other", Email: "other@example.com"}
	db.Create(&other)
	test.FakeModelProfile(db, &other, "male")

	req := test.NewJSONAuthRequest("GET", "/studio/models/list", strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response []ModelProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, "female", response[0].Gender)
}

func TestResetModel(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)
	profile := test.FakeModelProfile(db, user, "female")

	req := test.NewJSONAuthRequest("POST", fmt.Sprintf("/studio/models/%v/reset", profile.ID), strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response ModelProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "draft", response.Status)
	assert.Empty(t, response.RefImageUrls)

	var saved models.ModelProfile
	db.First(&saved, profile.ID)
	assert.Empty(t, []string(saved.RefImageKeys))
}

func TestDeleteModelNotFound(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, &test.AWSProviderMock{}, test.URLCacheMock{}, test.VisionMock{}, &test.ShopifyMock{}, test.DropboxMock{}, nil, nil)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("DELETE", "/studio/models/9999", strconv.FormatUint(uint64(user.ID), 10), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
