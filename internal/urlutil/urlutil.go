package urlutil

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

const (
	PostTypePermalink = "permalink"
	PostTypePhoto     = "photo"
	PostTypeVideo     = "video"
	PostTypeReel      = "reel"
	PostTypeStory     = "story"
	PostTypeGroupPost = "group_post"
	PostTypeProfile   = "profile"
	PostTypeUnknown   = "unknown"
)

// Host aliases that all serve the same post content; collapsed so duplicate
// submissions of the same post normalize to one URL.
var hostAliases = map[string]string{
	"facebook.com":          "www.facebook.com",
	"www.facebook.com":      "www.facebook.com",
	"m.facebook.com":        "www.facebook.com",
	"mbasic.facebook.com":   "www.facebook.com",
	"touch.facebook.com":    "www.facebook.com",
	"web.facebook.com":      "www.facebook.com",
	"business.facebook.com": "www.facebook.com",
	"fb.com":                "www.facebook.com",
	"www.fb.com":            "www.facebook.com",
	"fb.watch":              "fb.watch",
}

// Query keys that carry post identity and must survive normalization.
// Everything else (fbclid, utm_*, refs) is tracking noise and dropped.
var structuralQueryKeys = map[string]struct{}{
	"story_fbid": {},
	"fbid":       {},
	"id":         {},
	"v":          {},
	"set":        {},
}

var staticExtensions = map[string]struct{}{
	".css":   {},
	".gif":   {},
	".ico":   {},
	".jpeg":  {},
	".jpg":   {},
	".js":    {},
	".mp4":   {},
	".png":   {},
	".svg":   {},
	".webp":  {},
	".woff":  {},
	".woff2": {},
}

// Normalize canonicalizes a post URL: https scheme, collapsed host alias,
// cleaned path, tracking params stripped, fragment dropped. Returns the
// normalized URL and its hostname.
func Normalize(raw string) (string, string, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		if u.Host == "" {
			// Bare "fb.com/..." style input parses as a path.
			u, err = url.Parse("https://" + trimmed)
			if err != nil {
				return "", "", err
			}
		} else {
			u.Scheme = "https"
		}
	}
	u.Fragment = ""
	u.Host = CanonicalHost(u.Host)
	u.Path = normalizePath(u.Path)
	u.RawQuery = normalizeQuery(u.RawQuery)
	return u.String(), u.Hostname(), nil
}

// CanonicalHost lower-cases a host and collapses known aliases of the same
// content host (m., mbasic., web., fb.com) onto one canonical form.
func CanonicalHost(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if canonical, ok := hostAliases[host]; ok {
		return canonical
	}
	return host
}

// IsSupportedHost reports whether a host serves post pages this service
// knows how to harvest.
func IsSupportedHost(host string) bool {
	_, ok := hostAliases[strings.ToLower(host)]
	return ok
}

// IsHarvestable reports whether a URL is worth handing to a harvester at
// all: parseable, non-empty host, and not a static asset.
func IsHarvestable(raw string) bool {
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	return !isStaticAssetPath(u.Path)
}

// DetectPostType classifies a post URL by its path shape. Unknown types are
// still harvested; the type is informational and stored with the post.
func DetectPostType(raw string) string {
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return PostTypeUnknown
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return PostTypeUnknown
	}
	if host == "fb.watch" {
		return PostTypeVideo
	}

	segs := splitPath(u.Path)
	query := u.Query()

	switch {
	case len(segs) == 1 && segs[0] == "story.php":
		return PostTypeStory
	case len(segs) == 1 && segs[0] == "permalink.php":
		return PostTypePermalink
	case len(segs) == 1 && segs[0] == "photo.php":
		return PostTypePhoto
	case len(segs) >= 1 && segs[0] == "photo":
		return PostTypePhoto
	case len(segs) >= 1 && segs[0] == "reel":
		return PostTypeReel
	case len(segs) >= 1 && segs[0] == "watch":
		if query.Get("v") != "" {
			return PostTypeVideo
		}
		return PostTypeUnknown
	case len(segs) >= 3 && segs[0] == "groups" && (segs[2] == "posts" || segs[2] == "permalink"):
		return PostTypeGroupPost
	case len(segs) >= 3 && segs[1] == "posts":
		return PostTypePermalink
	case len(segs) >= 3 && segs[1] == "videos":
		return PostTypeVideo
	case len(segs) == 1:
		return PostTypeProfile
	}
	return PostTypeUnknown
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean(p)
	if clean == "." {
		return "/"
	}
	if clean != "/" && strings.HasSuffix(clean, "/") {
		clean = strings.TrimSuffix(clean, "/")
	}
	return clean
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		if _, ok := structuralQueryKeys[strings.ToLower(key)]; !ok {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	normalized := url.Values{}
	for _, k := range keys {
		normalized[k] = values[k]
	}
	return normalized.Encode()
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return parts
}

func isStaticAssetPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := staticExtensions[ext]
	return ok
}
