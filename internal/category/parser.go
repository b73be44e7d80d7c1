package category

import (
	"strings"
)

const (
	// Separator joins the segments of a canonical category path.
	Separator = " > "

	// HierarchyDelimiter splits raw paths for tree building and normalization.
	HierarchyDelimiter = ">"

	// Uncategorized labels rows without any usable category.
	Uncategorized = "Uncategorized"
)

// ExtractionDelimiters is the default delimiter set used to find a main category.
var ExtractionDelimiters = []string{";", ">", "|", ","}

// Parse splits raw on any of the delimiter characters, trims every piece and
// drops the empty ones.
func Parse(raw string, delimiters []string) []string {
	if raw == "" {
		return []string{}
	}

	pieces := strings.FieldsFunc(raw, func(r rune) bool {
		for _, d := range delimiters {
			if strings.ContainsRune(d, r) {
				return true
			}
		}
		return false
	})

	segments := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if p := strings.TrimSpace(piece); p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Normalize returns the canonical " > " joined form of a raw category path.
// Both sides of any path comparison must go through Normalize first.
func Normalize(raw string) string {
	return strings.Join(Parse(raw, []string{HierarchyDelimiter}), Separator)
}

// Contains reports whether path equals ancestor or lies beneath it.
// The check is string based: "Shoes" never contains "Shoes2" because the
// separator is part of the prefix.
func Contains(ancestor, path string) bool {
	return path == ancestor || strings.HasPrefix(path, ancestor+Separator)
}

// Main returns the first segment of raw split by delimiters, or Uncategorized.
func Main(raw string, delimiters []string) string {
	if len(delimiters) == 0 {
		delimiters = ExtractionDelimiters
	}
	segments := Parse(raw, delimiters)
	if len(segments) == 0 {
		return Uncategorized
	}
	return segments[0]
}

// Name returns the last segment of a canonical path.
func Name(path string) string {
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+len(Separator):]
	}
	return path
}
