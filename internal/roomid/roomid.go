// Package roomid generates short room ids and extracts them from shareable links.
package roomid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Length of a generated room id.
const Length = 6

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var ErrEmpty = errors.New("room ID cannot be empty")

// Generate returns a random base36 room id.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Parse accepts a bare room id or a link containing "/room/<id>", either in
// the path or in the fragment ("#/room/<id>").
func Parse(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmpty
	}
	if !strings.Contains(input, "/") {
		return validate(input)
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse room link: %w", err)
	}
	for _, p := range []string{u.Fragment, u.Path} {
		if id, ok := fromPath(p); ok {
			return validate(id)
		}
	}
	return "", fmt.Errorf("could not extract room ID from %q", input)
}

func fromPath(p string) (string, bool) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		if part == "room" && i+1 < len(parts) && parts[i+1] != "" {
			id, err := url.PathUnescape(parts[i+1])
			if err != nil {
				return "", false
			}
			return id, true
		}
	}
	return "", false
}

func validate(id string) (string, error) {
	for _, r := range id {
		if r < 0x21 || r == 0x7f || r == '/' || r == '#' || r == '?' {
			return "", fmt.Errorf("invalid room ID %q", id)
		}
	}
	return id, nil
}
