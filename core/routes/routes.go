// Package routes classifies the pages of the platform app by how much they depend on the user's session.
package routes

import "strings"

type Class string

const (
	// ClassPublic pages render the same content for everyone.
	ClassPublic Class = "public"
	// ClassMixed pages are public but personalized when signed in.
	ClassMixed Class = "mixed"
	// ClassPageEnforced pages are reachable anonymously but the page itself asks for a session.
	ClassPageEnforced Class = "page-enforced"
	// ClassProtected pages need a session.
	ClassProtected Class = "protected"
)

var (
	publicRoutes = []string{
		"/",
		"/about",
		"/impressum",
		"/privacy-policy",
		"/rules",
		"/terms-of-use",
		"/offer-information",
		"/offers",
		"/cms-example",
	}
	mixedRoutes = []string{
		"/coaching",
		"/packages/",
		"/coaches/",
		"/courses/",
	}
	pageEnforcedRoutes = []string{
		"/students/",
		"/checkout",
	}
	assetSuffixes = []string{".png", ".jpg", ".svg", ".ico"}
)

// Policy tells the session monitor how to behave on a page once the session expires.
type Policy struct {
	Path             string `json:"path"`
	Normalized       string `json:"normalized"`
	Class            Class  `json:"class"`
	PublicAccessible bool   `json:"publicAccessible"`
	ShowExpiryPrompt bool   `json:"showExpiryPrompt"`
	Dismissible      bool   `json:"dismissible"`
}

// Classifier knows the locales that may prefix a path.
type Classifier struct {
	locales []string
}

func NewClassifier(locales ...string) *Classifier {
	return &Classifier{locales: locales}
}

// Normalize strips a leading locale segment: "/de/courses/go" -> "/courses/go", "/de" -> "/".
func (c *Classifier) Normalize(path string) string {
	for _, l := range c.locales {
		prefix := "/" + l
		if path == prefix {
			return "/"
		}
		if strings.HasPrefix(path, prefix+"/") {
			return path[len(prefix):]
		}
	}
	return path
}

func (c *Classifier) Classify(path string) Class {
	if strings.Contains(path, "/auth/") {
		return ClassPublic
	}
	normalized := c.Normalize(path)
	switch {
	case matches(normalized, publicRoutes):
		return ClassPublic
	case matches(normalized, mixedRoutes):
		return ClassMixed
	case matches(normalized, pageEnforcedRoutes):
		return ClassPageEnforced
	}
	return ClassProtected
}

// IsPublicAccessible reports whether path can be visited without a session.
func (c *Classifier) IsPublicAccessible(path string) bool {
	for _, frag := range []string{"/auth/", "/api/", "/_next/", "/favicon"} {
		if strings.Contains(path, frag) {
			return true
		}
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return c.Classify(path) != ClassProtected
}

// Policy returns the session expiry policy of path.
func (c *Classifier) Policy(path string) Policy {
	class := c.Classify(path)
	return Policy{
		Path:             path,
		Normalized:       c.Normalize(path),
		Class:            class,
		PublicAccessible: c.IsPublicAccessible(path),
		ShowExpiryPrompt: class != ClassPublic,
		Dismissible:      class == ClassMixed,
	}
}

// matches checks exact and prefix matches: routes ending in "/" match anything below them,
// other routes match themselves and their sub paths.
func matches(path string, routes []string) bool {
	for _, r := range routes {
		switch {
		case r == "/":
			if path == "/" {
				return true
			}
		case strings.HasSuffix(r, "/"):
			if strings.HasPrefix(path, r) {
				return true
			}
		default:
			if path == r || strings.HasPrefix(path, r+"/") {
				return true
			}
		}
	}
	return false
}
