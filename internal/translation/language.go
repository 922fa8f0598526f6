// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translation

import (
	"fmt"

	"github.com/traylinx/translateLocal/internal/langtag"
)

// SourceLanguage is the only source language the pretrained models accept.
const SourceLanguage = "en"

// CanonicalLanguage is langtag.Canonical with failures wrapped in ErrUnsupportedLanguage.
func CanonicalLanguage(code string) (string, error) {
	lang, err := langtag.Canonical(code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedLanguage, err)
	}
	return lang, nil
}

// DisplayName returns the English name of a language code.
func DisplayName(code string) string {
	return langtag.DisplayName(code)
}
