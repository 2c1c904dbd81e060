package offline

import (
	"fmt"
	"net/url"
	"strings"
)

// metaKeyPrefix is a dot segment, so it lives outside the cacheable URL space
// and can never collide with a manifest file.
const metaKeyPrefix = "/.tour/"

// MetaKey returns the synthetic cache key the tour definition is stored under.
func MetaKey(slug string) string {
	return metaKeyPrefix + slug + ".json"
}

// Normalizer decides which manifest URLs belong in a tour cache and maps them
// onto stable cache keys. Only URLs on the configured origin, inside the
// deployment base path, qualify. Dot segments are rejected, which covers both
// hidden files and the .well-known tree.
type Normalizer struct {
	origin   *url.URL
	basePath string
}

// NewNormalizer builds a Normalizer for the given origin and base path.
func NewNormalizer(origin, basePath string) (*Normalizer, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q needs scheme and host", origin)
	}
	if basePath == "" {
		basePath = "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	return &Normalizer{origin: u, basePath: basePath}, nil
}

// Normalize resolves raw against the origin's base path and returns the cache
// key (path plus query) and the absolute URL to fetch. ok is false when the
// URL must not be cached.
func (n *Normalizer) Normalize(raw string) (key, fetchURL string, ok bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	base := *n.origin
	base.Path = n.basePath
	abs := base.ResolveReference(ref)

	if abs.Scheme != n.origin.Scheme || abs.Host != n.origin.Host {
		return "", "", false
	}

	p := abs.Path
	if p == "" {
		p = "/"
	}
	if p != strings.TrimSuffix(n.basePath, "/") && !strings.HasPrefix(p, n.basePath) {
		return "", "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", "", false
		}
	}

	key = p
	if abs.RawQuery != "" {
		key += "?" + abs.RawQuery
	}
	return key, abs.String(), true
}
