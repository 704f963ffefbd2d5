package services

import "strings"

// ItemCategory buckets a free-text item type so the prompt builder can pick a
// safe close-up rule for panel 3/4.
type ItemCategory string

const (
	CategoryFullLook  ItemCategory = "full-look"
	CategoryTop       ItemCategory = "top"
	CategoryBottom    ItemCategory = "bottom"
	CategoryFootwear  ItemCategory = "footwear"
	CategoryOuterwear ItemCategory = "outerwear"
	CategoryAccessory ItemCategory = "accessory"
	CategoryItem      ItemCategory = "item"
)

// SensitivityTier feeds the app-level policy gate. It is independent from
// whatever the generation backend's own moderation decides.
type SensitivityTier string

const (
	SensitivityHigh   SensitivityTier = "high"
	SensitivityMedium SensitivityTier = "medium"
	SensitivityLow    SensitivityTier = "low"
)

// Ordered: first matching category wins. One-piece garments go to full-look
// so close-ups pick a hero detail instead of a body-emphasizing crop, which
// is why full-look is checked before top/bottom.
var categoryKeywords = []struct {
	category ItemCategory
	words    []string
}{
	{CategoryFullLook, []string{"dress", "gown", "jumpsuit", "romper", "overall", "bodysuit", "co-ord", "two-piece set", "full look", "outfit"}},
	{CategoryOuterwear, []string{"jacket", "coat", "blazer", "parka", "trench", "windbreaker", "puffer", "vest", "cardigan"}},
	{CategoryTop, []string{"shirt", "t-shirt", "tee", "top", "blouse", "hoodie", "sweater", "sweatshirt", "polo", "tank", "crop", "jersey", "tunic"}},
	{CategoryBottom, []string{"pants", "trousers", "jeans", "shorts", "skirt", "leggings", "joggers", "chinos", "culottes"}},
	{CategoryFootwear, []string{"shoe", "shoes", "sneaker", "boot", "sandal", "heel", "loafer", "slipper", "trainer", "mule"}},
	{CategoryAccessory, []string{"belt", "bag", "hat", "cap", "scarf", "glove", "sock", "sunglasses", "watch", "jewelry", "necklace", "bracelet", "tie", "beanie", "wallet"}},
}

// InferItemCategory buckets free text by case-insensitive keyword containment.
func InferItemCategory(itemType string) ItemCategory {
	text := strings.ToLower(strings.TrimSpace(itemType))
	if text == "" {
		return CategoryItem
	}
	for _, entry := range categoryKeywords {
		for _, word := range entry.words {
			if strings.Contains(text, word) {
				return entry.category
			}
		}
	}
	return CategoryItem
}

// True intimates. Exact-word blocklist, not substring, so "brass" never trips
// on "bra".
var intimatesBlocklist = []string{
	"underwear", "bra", "lingerie", "thong", "briefs", "panties", "boxers", "underpants", "negligee",
}

var swimKeywords = []string{
	"bikini", "swimsuit", "swim trunks", "swimwear", "swim shorts", "bathing suit", "one-piece swim", "boardshorts", "rash guard",
}

// SensitivityTier classifies an item type for the optional pre-generation
// policy gate: high is blockable, medium (swim) is allowed by default.
func GetSensitivityTier(itemType string) SensitivityTier {
	text := strings.ToLower(strings.TrimSpace(itemType))
	if text == "" {
		return SensitivityLow
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '-'
	}) {
		for _, blocked := range intimatesBlocklist {
			if word == blocked {
				return SensitivityHigh
			}
		}
	}
	for _, word := range swimKeywords {
		if strings.Contains(text, word) {
			return SensitivityMedium
		}
	}
	return SensitivityLow
}

// IsSwimwear reports whether the item type reads as a swim category, which
// conditions the footwear lock lines in panel prompts.
func IsSwimwear(itemType string) bool {
	return GetSensitivityTier(itemType) == SensitivityMedium
}

// CloseUpRule returns the close-up framing rider the prompt builder appends
// for panels that contain a detail frame.
func CloseUpRule(category ItemCategory) string {
	switch category {
	case CategoryFullLook:
		return "CLOSE-UP SUBJECT: the garment is a one-piece look; pick the single highest-detail hero component (neckline seam, waist construction, fabric print) and frame it tightly. Keep framing on construction detail, never on body shape."
	case CategoryTop:
		return "CLOSE-UP SUBJECT: the top garment only - collar, placket, sleeve or chest print. Frame from shoulder line down to mid-torso; avoid any cleavage emphasis."
	case CategoryBottom:
		return "CLOSE-UP SUBJECT: the bottom garment only - waistband, pocket stitching, hem or fabric weave. Frame from waist to knee."
	case CategoryFootwear:
		return "CLOSE-UP SUBJECT: the footwear only - toe box, lacing, sole profile. Frame from mid-calf down."
	case CategoryOuterwear:
		return "CLOSE-UP SUBJECT: the outer layer only - lapel, zipper hardware, cuff or lining edge."
	case CategoryAccessory:
		return "CLOSE-UP SUBJECT: the accessory itself, worn as intended, filling most of the frame."
	default:
		return "CLOSE-UP SUBJECT: the featured catalog item, framed on its most distinctive construction detail."
	}
}
