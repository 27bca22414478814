package artifacts

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"redub/internal/fileutil"
)

// MetaFile holds the catalog record of a downloaded video.
const MetaFile = "meta.json"

// VideoRecord is the catalog entry written when a download completes.
type VideoRecord struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author,omitempty"`
	CoverURL     string    `json:"coverUrl,omitempty"`
	SourceURL    string    `json:"sourceUrl,omitempty"`
	ShareURL     string    `json:"shareUrl,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	UploadDate   string    `json:"uploadDate,omitempty"`
	HasCover     bool      `json:"hasCover"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// ValidVideoID reports whether id can name a directory below the staging
// root without escaping it.
func ValidVideoID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

// HasVideo reports whether videoID has a catalog record or downloaded media.
func (s *Store) HasVideo(videoID string) bool {
	if !ValidVideoID(videoID) {
		return false
	}
	return fileutil.Exists(s.Path(videoID, MetaFile)) || fileutil.Exists(s.MediaPath(videoID))
}

// SaveVideo writes meta.json for rec.ID.
func (s *Store) SaveVideo(rec *VideoRecord) error {
	if rec == nil {
		return errors.New("nil video record")
	}
	if !ValidVideoID(rec.ID) {
		return fmt.Errorf("save video record: invalid video id %q", rec.ID)
	}
	if err := fileutil.WriteJSON(s.Path(rec.ID, MetaFile), rec); err != nil {
		return fmt.Errorf("save video record: %w", err)
	}
	return nil
}

// LoadVideo returns the catalog record of videoID. A video whose media was
// staged without a record yields a bare record; an unknown video yields nil.
func (s *Store) LoadVideo(videoID string) (*VideoRecord, error) {
	if !ValidVideoID(videoID) {
		return nil, nil
	}
	videoID = strings.TrimSpace(videoID)
	var rec VideoRecord
	err := fileutil.ReadJSON(s.Path(videoID, MetaFile), &rec)
	switch {
	case err == nil:
		rec.ID = videoID
		return &rec, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("load video record: %w", err)
	}
	if !fileutil.Exists(s.MediaPath(videoID)) {
		return nil, nil
	}
	return &VideoRecord{
		ID:       videoID,
		HasCover: fileutil.Exists(s.Path(videoID, CoverFile)),
	}, nil
}

// ListVideos returns every cataloged video, most recently downloaded first.
func (s *Store) ListVideos() ([]*VideoRecord, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list videos: %w", err)
	}
	videos := make([]*VideoRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.LoadVideo(entry.Name())
		if err != nil {
			return nil, err
		}
		if rec != nil {
			videos = append(videos, rec)
		}
	}
	slices.SortStableFunc(videos, func(a, b *VideoRecord) int {
		if c := b.DownloadedAt.Compare(a.DownloadedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return videos, nil
}
