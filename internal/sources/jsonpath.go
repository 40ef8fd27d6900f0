package sources

import (
	"regexp"

	"github.com/tidwall/gjson"
)

// field reads a scalar at a gjson path ("author.name", "tags.0").
// Integer numbers keep their raw form so Unix timestamps survive.
func field(item gjson.Result, path string) (string, bool) {
	v := item.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	return v.String(), true
}

var rePlaceholder = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// expand fills {field} placeholders from an item. Missing fields make
// the whole template fail.
func expand(template string, item gjson.Result) (string, bool) {
	ok := true
	out := rePlaceholder.ReplaceAllStringFunc(template, func(m string) string {
		s, found := field(item, m[1:len(m)-1])
		if !found || s == "" {
			ok = false
			return ""
		}
		return s
	})
	return out, ok
}
