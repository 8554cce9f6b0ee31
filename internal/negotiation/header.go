package negotiation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// ParsePickerClientHeader extracts client identity from the Picker-Client header.
// Format: version="1.4.0", name="storefront" (RFC 8941 Dictionary).
//
// Examples:
//   - version="1.4.0"                 → {Version: 1.4.0}
//   - name="admin", version="v2.0.0"  → {Name: admin, Version: v2.0.0}
//   - version="1.4.0";build=7         → {Version: 1.4.0} (params ignored)
//
// Returns error if header is empty, malformed, missing the version key, or
// the version is not semver.
func ParsePickerClientHeader(header string) (ClientInfo, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ClientInfo{}, errors.New("empty Picker-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return ClientInfo{}, fmt.Errorf("invalid Picker-Client header: %w", err)
	}

	version, err := stringMember(dict, "version")
	if err != nil {
		return ClientInfo{}, err
	}
	if !ValidVersion(version) {
		return ClientInfo{}, fmt.Errorf("version %q is not semver", version)
	}

	info := ClientInfo{Version: version}
	if _, ok := dict.Get("name"); ok {
		if info.Name, err = stringMember(dict, "name"); err != nil {
			return ClientInfo{}, err
		}
	}
	return info, nil
}

// stringMember reads a string or token item from dict.
func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", fmt.Errorf("%s key not found in Picker-Client header", key)
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}

	switch v := item.Value.(type) {
	case string:
		return v, nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

// ValidVersion reports whether v is semver, with or without the "v" prefix.
func ValidVersion(v string) bool {
	return semver.IsValid(canonical(v))
}

// OlderThan reports whether version sorts before minimum by semver.
// Both may omit the "v" prefix. An empty minimum never rejects.
func OlderThan(version, minimum string) bool {
	if minimum == "" {
		return false
	}
	return semver.Compare(canonical(version), canonical(minimum)) < 0
}

// canonical adds "v" prefix if needed for semver parsing.
func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
