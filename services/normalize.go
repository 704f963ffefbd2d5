package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	barcodeRe      = regexp.MustCompile(`^(?:c\d{6,8}|\d{7,9})$`)
	barcodeStripRe = regexp.MustCompile(`[^c0-9]`)
)

// SanitizeBarcode lowercases, drops everything outside [c0-9] and caps length
// at 9. The result may still be invalid; check with ValidBarcode.
func SanitizeBarcode(raw string) string {
	cleaned := barcodeStripRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
	if len(cleaned) > 9 {
		cleaned = cleaned[:9]
	}
	return cleaned
}

// ValidBarcode accepts c-prefixed 6-8 digit codes or bare 7-9 digit codes.
func ValidBarcode(barcode string) bool {
	return barcodeRe.MatchString(strings.ToLower(barcode))
}

// BuildPanelLockKey derives the identity of one generation context. The
// regenerate gate and the panel history are keyed by it, so it must be
// invariant under reference ordering and item-type casing.
func BuildPanelLockKey(modelID uint, itemType string, itemRefs []string) string {
	refs := make([]string, len(itemRefs))
	copy(refs, itemRefs)
	sort.Strings(refs)
	return fmt.Sprintf("%d::%s::%s", modelID, strings.ToLower(strings.TrimSpace(itemType)), strings.Join(refs, "|"))
}

// FileStamp identifies an uploaded file for de-duplication.
type FileStamp struct {
	Name         string
	Size         int64
	LastModified int64
	MimeType     string
}

// DedupeFilesExact removes duplicates by name+size+mtime+mime. Used for
// general multi-select merges where the browser metadata is stable.
func DedupeFilesExact(files []FileStamp) []FileStamp {
	seen := map[string]bool{}
	var out []FileStamp
	for _, f := range files {
		key := fmt.Sprintf("%s|%d|%d|%s", f.Name, f.Size, f.LastModified, f.MimeType)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// DedupeReferenceKeys removes exact duplicate storage keys, keeping first
// occurrence order.
func DedupeReferenceKeys(keys []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// DedupeFilesLoose removes duplicates by name+size only. Folder walks report
// inconsistent mtime/type across traversal APIs, so the exact key over-keeps.
func DedupeFilesLoose(files []FileStamp) []FileStamp {
	seen := map[string]bool{}
	var out []FileStamp
	for _, f := range files {
		key := fmt.Sprintf("%s|%d", f.Name, f.Size)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

var (
	timestampSegmentRe = regexp.MustCompile(`^\d{9,}$`)
	leadingStampRe     = regexp.MustCompile(`^\d{9,}[-_]`)
	noiseSegmentRe     = regexp.MustCompile(`^(chatgpt|img|image|photo|upload|black|white|red|blue|green|beige|navy|grey|gray)$`)
)

// CanonicalUploadName reduces a previously-uploaded asset URL or file name to
// a stable name so re-uploads of the same logical asset merge instead of
// duplicating. Strips query/fragment, path segments, a leading numeric
// timestamp prefix and up to 3 known noise segments.
func CanonicalUploadName(raw string) string {
	name := raw
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	name = leadingStampRe.ReplaceAllString(name, "")

	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i:]
		name = name[:i]
	}
	segments := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	dropped := 0
	for len(segments) > 1 && dropped < 3 {
		seg := segments[0]
		if noiseSegmentRe.MatchString(seg) || timestampSegmentRe.MatchString(seg) {
			segments = segments[1:]
			dropped++
			continue
		}
		break
	}
	return strings.Join(segments, "_") + ext
}
