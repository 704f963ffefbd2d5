package services

import (
	"fmt"
	"regexp"
	"strings"
)

// PosePair is the two poses rendered side by side in one generated panel.
type PosePair struct {
	Left  int
	Right int
}

// PanelPosePair returns the fixed pose pair for a panel. The tables are part
// of the catalog layout contract and never change at runtime. Unknown genders
// fall back to the male table; an out-of-range panel is an error.
func PanelPosePair(gender string, panel int) (PosePair, error) {
	female := strings.EqualFold(gender, "female")
	switch panel {
	case 1:
		return PosePair{1, 2}, nil
	case 2:
		return PosePair{3, 4}, nil
	case 3:
		if female {
			return PosePair{7, 5}, nil
		}
		return PosePair{5, 6}, nil
	case 4:
		if female {
			return PosePair{6, 8}, nil
		}
		return PosePair{7, 8}, nil
	default:
		return PosePair{}, fmt.Errorf("panel number %d out of range (1-4)", panel)
	}
}

// FallbackPanel maps a refused close-up panel to the safer panel whose pose
// pair and lock rules are substituted on the single moderation retry.
// Only panels 3 and 4 have a fallback.
func FallbackPanel(panel int) (int, bool) {
	switch panel {
	case 3:
		return 1, true
	case 4:
		return 2, true
	default:
		return 0, false
	}
}

// PoseLibraryText is the authored pose document. It is sent verbatim in every
// generation prompt so the model grounds pose numbers against the same text
// the active pose blocks are extracted from. Formatting matters: the parser
// below keys on the "GENDER — POSE N" headers.
const PoseLibraryText = `=== POSE LIBRARY v3 ===

FEMALE — POSE 1 — Front Relaxed
Standing straight facing camera, weight even, arms relaxed at sides,
shoulders open, chin level, soft neutral expression.

FEMALE — POSE 2 — Three-Quarter Turn
Body rotated 45 degrees to camera-left, face toward camera, near hand
resting lightly on hip, far arm hanging naturally.

FEMALE — POSE 3 — Back View
Full back to camera, feet hip-width, arms slightly away from torso so the
garment silhouette reads cleanly, head in profile looking camera-left.

FEMALE — POSE 4 — Side Profile
Strict left profile, back straight, near arm visible along the body,
front foot a half step forward.

FEMALE — POSE 5 — Walking Step
Mid-stride toward camera, front leg extended, gentle natural arm swing,
gaze past camera, hair with slight motion.

FEMALE — POSE 6 — Seated Stool
Seated on a low studio stool, spine long, knees together angled
camera-right, hands stacked on the upper knee.

FEMALE — POSE 7 — Detail Lean
Standing with slight forward lean, one hand adjusting the garment hem or
cuff, eyes down toward the adjusted detail.

FEMALE — POSE 8 — Over-Shoulder Look
Back mostly to camera, torso twisted so the face looks back over the near
shoulder, far hand holding the opposite elbow.

MALE — POSE 1 — Front Relaxed
Standing square to camera, feet shoulder-width, arms at sides, shoulders
dropped, neutral jaw, direct gaze.

MALE — POSE 2 — Three-Quarter Turn
Body rotated 45 degrees camera-right, face to camera, one thumb hooked
loosely at the pocket line, other arm relaxed.

MALE — POSE 3 — Back View
Full back to camera, stance natural, arms slightly off the torso, head
straight ahead.

MALE — POSE 4 — Side Profile
Strict right profile, posture tall, hands relaxed, rear heel slightly
lifted as if mid pause.

MALE — POSE 5 — Walking Step
Mid-stride toward camera, moderate arm swing, gaze level past camera.

MALE — POSE 6 — Casual Lean
Leaning a shoulder against a plain studio column, ankles crossed, hands
loose, weight on the leaning side.

MALE — POSE 7 — Detail Adjust
Standing, hands adjusting the collar or cuff, eyes down toward the hands,
elbows close to the body.

MALE — POSE 8 — Seated Forward
Seated on a low stool, elbows on knees, hands loosely clasped, head up
toward camera.
`

var (
	genderPoseHeaderRe = regexp.MustCompile(`(?mi)^(FEMALE|MALE)\s+—\s+POSE\s+(\d)\b[^\n]*$`)
	barePoseHeaderRe   = regexp.MustCompile(`(?mi)^POSE\s+(\d)\b[^\n]*$`)
)

// poseBlocks is built once from PoseLibraryText so prompt assembly is an O(1)
// map lookup instead of a regex scan per request.
var poseBlocks = parsePoseLibrary(PoseLibraryText)

func parsePoseLibrary(library string) map[string]string {
	blocks := map[string]string{}
	matches := genderPoseHeaderRe.FindAllStringSubmatchIndex(library, -1)
	for i, m := range matches {
		gender := strings.ToLower(library[m[2]:m[3]])
		pose := library[m[4]:m[5]]
		end := len(library)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		blocks[gender+"-"+pose] = strings.TrimSpace(library[m[0]:end])
	}
	return blocks
}

// ExtractPoseBlock returns the authored text for one pose. It prefers the
// pre-parsed table, then a bare "POSE N" header scan for library revisions
// without gender prefixes, then a plain placeholder so prompt assembly never
// fails on a formatting drift in the document.
func ExtractPoseBlock(gender string, pose int) string {
	key := fmt.Sprintf("%s-%d", normalizeGender(gender), pose)
	if block, ok := poseBlocks[key]; ok {
		return block
	}
	if m := barePoseHeaderRe.FindAllStringIndex(PoseLibraryText, -1); m != nil {
		for _, loc := range m {
			header := PoseLibraryText[loc[0]:loc[1]]
			if strings.Contains(header, fmt.Sprintf("POSE %d", pose)) {
				return strings.TrimSpace(header)
			}
		}
	}
	return fmt.Sprintf("POSE %d", pose)
}

func normalizeGender(gender string) string {
	if strings.EqualFold(gender, "female") {
		return "female"
	}
	return "male"
}
