// Package tagurl maps participants to the URL stored on their identity tag
// and back. The convention is <base>/users/<id>.
package tagurl

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrBadBase rejects a base URL whose tags could not be read back.
var ErrBadBase = errors.New("tagurl: base must be an https URL with a host")

var userPath = regexp.MustCompile(`^https://[^/\s]+(?:/[^\s]*)?/users/(\d+)$`)

// Build returns the tag URL for a user id.
func Build(base string, id int) string {
	return strings.TrimRight(base, "/") + "/users/" + strconv.Itoa(id)
}

// ExtractID parses the user id out of a tag URL. Anything that is not an
// https URL ending in /users/<digits> yields false.
func ExtractID(raw string) (int, bool) {
	m := userPath.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// ValidateBase checks that tags written under base pass ExtractID.
func ValidateBase(base string) error {
	u, err := url.Parse(base)
	if err != nil || u.Scheme != "https" || u.Host == "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%w: %q", ErrBadBase, base)
	}
	if _, ok := ExtractID(Build(base, 1)); !ok {
		return fmt.Errorf("%w: %q", ErrBadBase, base)
	}
	return nil
}
