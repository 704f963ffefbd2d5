package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBarcode(t *testing.T) {
	assert.Equal(t, "c1234567", SanitizeBarcode(" C1234567 "))
	assert.Equal(t, "1234567", SanitizeBarcode("123-45 67"))
	assert.Equal(t, "123456789", SanitizeBarcode("12345678901234")) // capped at 9
	assert.Equal(t, "", SanitizeBarcode("xyz"))
}

func TestValidBarcode(t *testing.T) {
	valid := []string{"c123456", "c12345678", "1234567", "123456789"}
	for _, b := range valid {
		assert.True(t, ValidBarcode(b), b)
	}
	invalid := []string{"", "c12345", "c123456789", "123456", "1234567890", "abc1234", "12c4567"}
	for _, b := range invalid {
		assert.False(t, ValidBarcode(b), b)
	}
}

func TestBuildPanelLockKeyStableUnderOrderAndCase(t *testing.T) {
	a := BuildPanelLockKey(7, "Hoodie", []string{"b.png", "a.png"})
	b := BuildPanelLockKey(7, "  hoodie ", []string{"a.png", "b.png"})
	assert.Equal(t, a, b)
	assert.Equal(t, "7::hoodie::a.png|b.png", a)
}

func TestBuildPanelLockKeyChangesWithContext(t *testing.T) {
	base := BuildPanelLockKey(7, "hoodie", []string{"a.png"})
	assert.NotEqual(t, base, BuildPanelLockKey(8, "hoodie", []string{"a.png"}))
	assert.NotEqual(t, base, BuildPanelLockKey(7, "jacket", []string{"a.png"}))
	assert.NotEqual(t, base, BuildPanelLockKey(7, "hoodie", []string{"b.png"}))
}

func TestDedupeFiles(t *testing.T) {
	files := []FileStamp{
		{Name: "a.png", Size: 10, LastModified: 1, MimeType: "image/png"},
		{Name: "a.png", Size: 10, LastModified: 2, MimeType: "image/png"},
		{Name: "a.png", Size: 10, LastModified: 1, MimeType: "image/png"},
	}
	assert.Len(t, DedupeFilesExact(files), 2)
	assert.Len(t, DedupeFilesLoose(files), 1)
}

func TestDedupeReferenceKeys(t *testing.T) {
	keys := DedupeReferenceKeys([]string{"a.png", " ", "b.png", "a.png", ""})
	assert.Equal(t, []string{"a.png", "b.png"}, keys)
}

func TestCanonicalUploadName(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://cdn.example.com/items/1693412345678-IMG_front.png?sig=abc", "front.png"},
		{"1693412345678_photo_red_look.jpg", "look.jpg"},
		{"ChatGPT_Image-hoodie.png", "hoodie.png"},
		{"plain.png", "plain.png"},
		{"front-back.png", "front_back.png"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalUploadName(tc.raw), "raw %q", tc.raw)
	}
}
