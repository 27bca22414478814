package crawl

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"redub/internal/artifacts"
)

const (
	idPrefix   = "redub-id:"
	metaPrefix = "redub-meta:"
)

// metaTemplate asks yt-dlp for the catalog fields as one JSON object.
const metaTemplate = "%(.{id,title,description,uploader,channel,thumbnail,duration,webpage_url,upload_date})j"

var percentPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

func parseVideoID(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), idPrefix)
	if !ok {
		return "", false
	}
	id := strings.TrimSpace(rest)
	if !artifacts.ValidVideoID(id) {
		return "", false
	}
	return id, true
}

type infoLine struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Thumbnail   string  `json:"thumbnail"`
	Duration    float64 `json:"duration"`
	WebpageURL  string  `json:"webpage_url"`
	UploadDate  string  `json:"upload_date"`
}

// parseInfo decodes the metadata line printed before the download. Missing
// fields come through as JSON null and decode to zero values.
func parseInfo(line string) (*artifacts.VideoRecord, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), metaPrefix)
	if !ok {
		return nil, false
	}
	var info infoLine
	if err := json.Unmarshal([]byte(rest), &info); err != nil {
		return nil, false
	}
	author := strings.TrimSpace(info.Uploader)
	if author == "" {
		author = strings.TrimSpace(info.Channel)
	}
	return &artifacts.VideoRecord{
		ID:          strings.TrimSpace(info.ID),
		Title:       strings.TrimSpace(info.Title),
		Description: strings.TrimSpace(info.Description),
		Author:      author,
		CoverURL:    strings.TrimSpace(info.Thumbnail),
		SourceURL:   strings.TrimSpace(info.WebpageURL),
		Duration:    info.Duration,
		UploadDate:  strings.TrimSpace(info.UploadDate),
	}, true
}

func parsePercent(line string) (int, bool) {
	match := percentPattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if value > 100 {
		value = 100
	}
	return int(value), true
}
