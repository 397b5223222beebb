package model

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var bracketRegex = regexp.MustCompile(`\[(.*?)\]`)

// Courier is the structured form of a courier display string such as
// "MUCHLIS MUSTARI [Ops1187094]".
type Courier struct {
	Name        string `json:"name"`         // raw display string, the grouping key
	DisplayName string `json:"display_name"` // Name without the bracketed identifier
	ID          string `json:"id,omitempty"` // normalized identifier, empty if none
}

// ParseCourier extracts the bracketed identifier from a raw courier name.
// A case-insensitive "ops" prefix is normalized to "Ops".
func ParseCourier(raw string) Courier {
	c := Courier{Name: raw, DisplayName: strings.TrimSpace(raw)}
	loc := bracketRegex.FindStringSubmatchIndex(raw)
	if loc == nil {
		return c
	}
	c.ID = NormalizeCourierID(raw[loc[2]:loc[3]])
	c.DisplayName = strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	return c
}

// NormalizeCourierID trims id and canonicalizes its "ops" prefix.
func NormalizeCourierID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= 3 && strings.EqualFold(id[:3], "ops") {
		return "Ops" + id[3:]
	}
	return id
}

// Initial returns the upper-cased first letter of the display name.
func (c Courier) Initial() string {
	name := c.DisplayName
	if name == "" {
		name = strings.TrimSpace(c.Name)
	}
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
