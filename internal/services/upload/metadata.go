package upload

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"redub/internal/queue"
)

const metadataFile = "upload.json"

const (
	maxTitleRunes = 100
	maxTags       = 30
)

// NormalizeMetadata tidies user supplied metadata before it is handed to the
// upload command: whitespace is collapsed, the title is capped, tags are
// de-duplicated case-insensitively and privacy defaults to private.
func NormalizeMetadata(meta queue.UploadMetadata) queue.UploadMetadata {
	tagFolder := cases.Fold()
	out := queue.UploadMetadata{
		Title:       truncateRunes(collapse(meta.Title), maxTitleRunes),
		Description: strings.TrimSpace(meta.Description),
		Category:    cases.Title(language.English).String(collapse(meta.Category)),
		Privacy:     strings.ToLower(strings.TrimSpace(meta.Privacy)),
	}
	switch out.Privacy {
	case "public", "unlisted", "private":
	default:
		out.Privacy = "private"
	}
	seen := make(map[string]struct{}, len(meta.Tags))
	for _, tag := range meta.Tags {
		tag = collapse(strings.TrimLeft(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		key := tagFolder.String(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Tags = append(out.Tags, tag)
		if len(out.Tags) == maxTags {
			break
		}
	}
	return out
}

func collapse(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit]))
}
