package models

import (
	"strings"

	"treeline/internal/apierrors"
)

const nameSeparator = "/"

// SplitProjectName splits a "/"-delimited display name into its leaf
// segment and the ancestor location ("" for a root name). Empty segments,
// including a fully empty name, are a naming error.
func SplitProjectName(name string) (base string, location string, err error) {
	segments := strings.Split(name, nameSeparator)
	for _, s := range segments {
		if s == "" {
			return "", "", apierrors.ErrInvalidName
		}
	}
	base = segments[len(segments)-1]
	location = strings.Join(segments[:len(segments)-1], nameSeparator)
	return base, location, nil
}

// JoinProjectName is the inverse of SplitProjectName.
func JoinProjectName(location, base string) string {
	if location == "" {
		return base
	}
	return location + nameSeparator + base
}

// ProjectNameDepth is the number of segments in a display name, i.e. the
// depth the project would have in the tree.
func ProjectNameDepth(name string) int {
	if name == "" {
		return 0
	}
	return strings.Count(name, nameSeparator) + 1
}

// ProjectNameSegments splits a display name into its segments.
func ProjectNameSegments(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Split(name, nameSeparator)
}
