// Package xmlutil provides the tolerant, namespace-insensitive tag
// extraction the ImageServer and SOAP endpoints require: Milestone
// responses mix unprefixed and "a:"-prefixed elements depending on
// endpoint version, so a rigid encoding/xml struct (fixed namespace)
// rejects perfectly valid responses. This keeps the source's
// substring-regex approach but makes it a single, disciplined helper
// instead of ad-hoc matching scattered per call site.
package xmlutil

import (
	"fmt"
	"regexp"
	"sync"
)

var (
	mu    sync.Mutex
	cache = map[string]*regexp.Regexp{}
)

func tagRegexp(name string) *regexp.Regexp {
	mu.Lock()
	defer mu.Unlock()
	if re, ok := cache[name]; ok {
		return re
	}
	pattern := fmt.Sprintf(`(?is)<(?:[a-zA-Z0-9_]+:)?%s\b[^>]*>(.*?)</(?:[a-zA-Z0-9_]+:)?%s>`, name, name)
	re := regexp.MustCompile(pattern)
	cache[name] = re
	return re
}

// Tag extracts the first occurrence of <tag> or <ns:tag>, case and
// namespace insensitive, returning its inner text and whether it matched.
func Tag(body []byte, name string) (string, bool) {
	re := tagRegexp(name)
	m := re.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// TagAll extracts every occurrence of <tag>...</tag>, used for repeated
// elements such as a sequence list.
func TagAll(body []byte, name string) []string {
	re := tagRegexp(name)
	matches := re.FindAllSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, string(m[1]))
	}
	return out
}
