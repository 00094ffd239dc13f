package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// DocPath is the location of the v1 document relative to the project root.
const DocPath = "public/docs/v1/openapi.yml"

var ErrDocNotFound = errors.New("openapi document not found")

// Locate finds the document from the working directory of the binary or of
// a test two or three levels below the root.
func Locate() (string, error) {
	for _, base := range []string{"./", "../../", "../../../"} {
		p := filepath.Join(base, DocPath)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrDocNotFound
}

// Load parses and validates the document at path.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}

// UndocumentedRoutes lists "METHOD /path" for every app route below one of
// the prefixes that has no operation in doc.
func UndocumentedRoutes(doc *openapi3.T, routes []fiber.Route, prefixes ...string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, r := range routes {
		if r.Method == http.MethodHead || r.Method == http.MethodOptions || !hasPrefix(r.Path, prefixes) {
			continue
		}
		p := ToOpenAPIPath(r.Path)
		key := r.Method + " " + p
		if seen[key] {
			continue
		}
		seen[key] = true

		item := doc.Paths.Value(p)
		if item == nil || item.GetOperation(r.Method) == nil {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// ToOpenAPIPath rewrites fiber parameters (":id") to template form ("{id}").
func ToOpenAPIPath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = "{" + strings.TrimSuffix(s[1:], "?") + "}"
		}
	}
	out := strings.Join(segments, "/")
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

func hasPrefix(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
