package storage

import (
	"fmt"
	"strings"
)

// Join builds a path from segments.
func Join(segments ...string) string { return strings.Join(segments, "/") }

func splitPath(p string) ([]string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(p, "/")
	for _, s := range parts {
		if s == "" || s == "." || s == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return parts, nil
}

type docKey struct {
	path       string
	collection string
	group      string
	id         string
}

func parseDocPath(p string) (docKey, error) {
	parts, err := splitPath(p)
	if err != nil {
		return docKey{}, err
	}
	if len(parts)%2 != 0 {
		return docKey{}, fmt.Errorf("%w: %q is a collection path", ErrInvalidPath, p)
	}
	n := len(parts)
	return docKey{
		path:       strings.Join(parts, "/"),
		collection: strings.Join(parts[:n-1], "/"),
		group:      parts[n-2],
		id:         parts[n-1],
	}, nil
}

func parseCollectionPath(p string) (string, error) {
	parts, err := splitPath(p)
	if err != nil {
		return "", err
	}
	if len(parts)%2 != 1 {
		return "", fmt.Errorf("%w: %q is a document path", ErrInvalidPath, p)
	}
	return strings.Join(parts, "/"), nil
}
