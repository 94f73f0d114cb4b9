package compose

import (
	"fmt"
	"os"
	"strings"
)

// MapExpander is the default macro engine: ${NAME} references resolved from
// the composition context. Unknown references are an error so callers see
// the raw-template fallback instead of silently emptied text.
type MapExpander struct{}

func (MapExpander) Expand(template string, env Context) (string, error) {
	if !strings.Contains(template, "${") {
		return template, nil
	}
	var missing []string
	out := os.Expand(template, func(name string) string {
		if v, ok := env[name]; ok {
			return v
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown macro(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}
