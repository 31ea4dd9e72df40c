package cache

import (
	"fmt"
	"strings"
)

// GenerateKeyWithParams builds a colon-separated cache key from a prefix and
// any number of parameters.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}
