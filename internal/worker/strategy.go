package worker

import (
	"path"
	"strings"

	"tillsync/internal/cache"
)

type Strategy int

const (
	// Bypass means the request is not intercepted at all.
	Bypass Strategy = iota
	CacheFirst
	NetworkFirst
	NetworkFirstOfflinePage
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case NetworkFirstOfflinePage:
		return "network-first-offline-page"
	default:
		return "bypass"
	}
}

const (
	apiPrefix   = "/api/"
	buildPrefix = "/build/"
)

var assetTypes = map[string][]string{
	".js":    {"application/javascript", "text/javascript", "application/x-javascript", "application/ecmascript"},
	".mjs":   {"application/javascript", "text/javascript"},
	".css":   {"text/css"},
	".png":   {"image/png"},
	".jpg":   {"image/jpeg"},
	".jpeg":  {"image/jpeg"},
	".gif":   {"image/gif"},
	".svg":   {"image/svg+xml"},
	".webp":  {"image/webp"},
	".ico":   {"image/x-icon", "image/vnd.microsoft.icon"},
	".woff":  {"font/woff", "application/font-woff"},
	".woff2": {"font/woff2", "application/font-woff2"},
	".ttf":   {"font/ttf", "application/x-font-ttf", "application/font-sfnt"},
	".eot":   {"application/vnd.ms-fontobject"},
	".map":   {"application/json"},
}

// Classify picks the caching strategy for a same-origin GET.
func Classify(method, p, accept string) Strategy {
	if method != "GET" {
		return Bypass
	}
	switch {
	case strings.HasPrefix(p, apiPrefix):
		return NetworkFirst
	case isStaticAsset(p):
		return CacheFirst
	case strings.Contains(accept, "text/html"):
		return NetworkFirstOfflinePage
	default:
		return NetworkFirst
	}
}

func isStaticAsset(p string) bool {
	if strings.HasPrefix(p, buildPrefix) {
		return true
	}
	_, ok := assetTypes[strings.ToLower(path.Ext(p))]
	return ok
}

// contentTypeFits reports whether a response content type is plausible for
// the requested path. Unknown extensions accept anything but HTML, which is
// what an error page served under an asset URL looks like.
func contentTypeFits(p, contentType string) bool {
	mt := cache.MediaType(contentType)
	want, ok := assetTypes[strings.ToLower(path.Ext(p))]
	if !ok {
		return mt != "text/html"
	}
	for _, w := range want {
		if mt == w {
			return true
		}
	}
	return false
}
