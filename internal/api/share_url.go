package api

import (
	"net/url"
	"strings"
)

// IsSupportedShareURL reports whether raw is a Douyin share or video link.
func IsSupportedShareURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	path := parsed.Path
	switch host {
	case "v.douyin.com":
		return strings.Trim(path, "/") != ""
	case "www.douyin.com", "douyin.com":
		return strings.HasPrefix(path, "/video/") && len(path) > len("/video/")
	case "www.iesdouyin.com", "iesdouyin.com":
		return strings.HasPrefix(path, "/share/video/") && len(path) > len("/share/video/")
	}
	return false
}
