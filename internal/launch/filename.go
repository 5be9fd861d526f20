package launch

import "strings"

const maxPathComponents = 10

// ValidComponent checks one path component. Letters, digits and `_-.` are
// always allowed; space only outside strict mode. At least one character
// must come from [A-Za-z0-9_-], which rules out names like "." and "..".
func ValidComponent(component string, strict bool) bool {
	if len(component) < 1 || len(component) > 255 {
		return false
	}
	anchored := false
	for _, r := range component {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			anchored = true
		case r == '.':
		case r == ' ' && !strict:
		default:
			return false
		}
	}
	return anchored
}

// ValidPath checks a slash-joined relative path of at most ten components.
func ValidPath(path string, strict bool) bool {
	components := strings.Split(path, "/")
	if len(components) == 0 || len(components) > maxPathComponents {
		return false
	}
	for _, component := range components {
		if !ValidComponent(component, strict) {
			return false
		}
	}
	return true
}
