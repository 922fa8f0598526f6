// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package langtag canonicalises the language codes used in configuration and requests.
package langtag

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrInvalid is returned for codes that do not name a single base language.
var ErrInvalid = errors.New("invalid language code")

// Canonical reduces a BCP 47 tag to its lower-case base language, so "EN",
// "en-US" and "fr_FR" become "en", "en" and "fr". Deprecated codes are replaced
// by their modern form ("iw" becomes "he").
func Canonical(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalid, code)
	}
	base, confidence := tag.Base()
	if confidence != language.Exact {
		return "", fmt.Errorf("%w: %q", ErrInvalid, code)
	}
	return base.String(), nil
}

// DisplayName returns the English name of a language code, or the code itself
// when it has none.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
