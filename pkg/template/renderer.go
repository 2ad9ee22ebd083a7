package template

import (
	"fmt"
	"regexp"
	"strings"

	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Renderer substitutes named variables into a template body. Rendering is
// pure: the only inputs are the body, the variables, and the declared
// per-type defaults.
type Renderer struct{}

// NewRenderer constructs a renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render replaces every {{name}} placeholder in body with the matching value
// from vars, falling back to defaults. Extra variables without a placeholder
// are ignored. A placeholder with neither a value nor a default fails with
// MISSING_VARIABLE naming the placeholder.
func (r *Renderer) Render(body string, vars map[string]string, defaults map[string]string) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		if value, ok := vars[name]; ok {
			return value
		}
		if value, ok := defaults[name]; ok {
			return value
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", appErrors.Clone(appErrors.ErrMissingVariable,
			fmt.Sprintf("template placeholder has no value: %s", strings.Join(missing, ", ")))
	}
	return rendered, nil
}

// Placeholders returns the unique placeholder names found in body, in order
// of first appearance.
func Placeholders(body string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
