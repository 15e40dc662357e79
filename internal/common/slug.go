package common

import "strings"

// Slugify converts a display name to its URL-safe form: lowercase with
// spaces collapsed to single hyphens. ADO project names may contain spaces
// and mixed case; GitLab-style URLs never do.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return slug
}

// SlugEqual reports whether the candidate matches the name either exactly
// (case-insensitively) or by slug.
func SlugEqual(name, candidate string) bool {
	if strings.EqualFold(name, candidate) {
		return true
	}
	return Slugify(name) == Slugify(candidate)
}
