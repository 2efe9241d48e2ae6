package docstore

import (
	"fmt"
	"strings"
)

// Join builds a path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the segments of a path.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// IsDocPath reports whether path names a document (an even number of
// non-empty segments).
func IsDocPath(path string) bool {
	return validSegments(path) && len(Split(path))%2 == 0
}

// IsCollectionPath reports whether path names a collection (an odd number of
// non-empty segments).
func IsCollectionPath(path string) bool {
	return validSegments(path) && len(Split(path))%2 == 1
}

// Parent returns the collection path that contains the document at path.
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Base returns the last segment of path.
func Base(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// CheckDocPath returns an InvalidArgument error if path is not a document path.
func CheckDocPath(op, path string) error {
	if !IsDocPath(path) {
		return NewError(op, path, CodeInvalidArgument, fmt.Errorf("%q is not a document path", path))
	}
	return nil
}

// CheckCollectionPath returns an InvalidArgument error if path is not a
// collection path.
func CheckCollectionPath(op, path string) error {
	if !IsCollectionPath(path) {
		return NewError(op, path, CodeInvalidArgument, fmt.Errorf("%q is not a collection path", path))
	}
	return nil
}

func validSegments(path string) bool {
	segments := Split(path)
	if len(segments) == 0 {
		return false
	}
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return false
		}
	}
	return true
}
