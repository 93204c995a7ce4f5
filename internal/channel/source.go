package channel

import (
	"fmt"
	"strings"
)

// SourceKind distinguishes group from private conversations.
type SourceKind string

const (
	KindGroup   SourceKind = "G"
	KindPrivate SourceKind = "P"
)

// Split breaks a source identity like "G100" or "P42" into its kind
// and the platform-native identifier.
func Split(source string) (SourceKind, string, error) {
	if len(source) < 2 {
		return "", "", fmt.Errorf("source %q too short", source)
	}
	kind := SourceKind(source[:1])
	switch kind {
	case KindGroup, KindPrivate:
		return kind, source[1:], nil
	}
	return "", "", fmt.Errorf("source %q has unknown prefix", source)
}

// Join composes a source identity from its kind and identifier.
func Join(kind SourceKind, id string) string {
	return string(kind) + strings.TrimSpace(id)
}
