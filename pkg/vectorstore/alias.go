package vectorstore

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// an alias is {encoded document name}_c{32 hex digits}
var aliasPattern = regexp.MustCompile(`^([0-9a-zA-Z_]+)_c([a-f0-9]{32})$`)

// EncodeDocName encodes a document name into the alias alphabet. URL-safe
// base64 is used, with "-" written as "a_a" and "=" as "b_b".
func EncodeDocName(name string) string {
	s := base64.URLEncoding.EncodeToString([]byte(name))
	s = strings.ReplaceAll(s, "-", "a_a")
	return strings.ReplaceAll(s, "=", "b_b")
}

func DecodeDocName(encoded string) (string, error) {
	s := strings.ReplaceAll(encoded, "a_a", "-")
	s = strings.ReplaceAll(s, "b_b", "=")
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return "", errors.Wrapf(err, "invalid encoded document name %q", encoded)
	}
	return string(b), nil
}

// NewCollectionID returns a fresh collection id, 32 lowercase hex digits.
func NewCollectionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CollectionName is the collection name for an id.
func CollectionName(id string) string {
	return "c" + id
}

func MakeAlias(docName string, id string) string {
	return EncodeDocName(docName) + "_" + CollectionName(id)
}

// ParseAlias splits a valid alias into the encoded document name and the
// collection id.
func ParseAlias(alias string) (encoded string, id string, ok bool) {
	m := aliasPattern.FindStringSubmatch(alias)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
