package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelPosePairTables(t *testing.T) {
	cases := []struct {
		gender string
		panel  int
		want   PosePair
	}{
		{"female", 1, PosePair{1, 2}},
		{"female", 2, PosePair{3, 4}},
		{"female", 3, PosePair{7, 5}},
		{"female", 4, PosePair{6, 8}},
		{"male", 1, PosePair{1, 2}},
		{"male", 2, PosePair{3, 4}},
		{"male", 3, PosePair{5, 6}},
		{"male", 4, PosePair{7, 8}},
	}
	for _, tc := range cases {
		got, err := PanelPosePair(tc.gender, tc.panel)
		require.NoError(t, err, "gender %s panel %d", tc.gender, tc.panel)
		assert.Equal(t, tc.want, got, "gender %s panel %d", tc.gender, tc.panel)
	}
}

func TestPanelPosePairUnknownGenderUsesMaleTable(t *testing.T) {
	got, err := PanelPosePair("nonbinary", 3)
	require.NoError(t, err)
	assert.Equal(t, PosePair{5, 6}, got)

	upper, err := PanelPosePair("FEMALE", 3)
	require.NoError(t, err)
	assert.Equal(t, PosePair{7, 5}, upper)
}

func TestPanelPosePairOutOfRange(t *testing.T) {
	for _, panel := range []int{0, 5, -1, 42} {
		_, err := PanelPosePair("female", panel)
		assert.Error(t, err, "panel %d", panel)
	}
}

func TestFallbackPanel(t *testing.T) {
	fb, ok := FallbackPanel(3)
	assert.True(t, ok)
	assert.Equal(t, 1, fb)

	fb, ok = FallbackPanel(4)
	assert.True(t, ok)
	assert.Equal(t, 2, fb)

	_, ok = FallbackPanel(1)
	assert.False(t, ok)
	_, ok = FallbackPanel(2)
	assert.False(t, ok)
}

func TestExtractPoseBlockAllPoses(t *testing.T) {
	for _, gender := range []string{"female", "male"} {
		for pose := 1; pose <= 8; pose++ {
			block := ExtractPoseBlock(gender, pose)
			assert.Contains(t, block, fmt.Sprintf("POSE %d", pose))
			assert.Contains(t, strings.ToLower(block), gender)
			// headers belong to exactly one pose
			assert.NotContains(t, block, fmt.Sprintf("POSE %d", pose+1))
		}
	}
}

func TestExtractPoseBlockMissingPosePlaceholder(t *testing.T) {
	block := ExtractPoseBlock("female", 9)
	assert.Equal(t, "POSE 9", block)
}
