// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translate

// TranslationRequest is the body of POST /translate.
type TranslationRequest struct {
	Text       string `json:"text" form:"text"`
	SourceLang string `json:"source_lang" form:"source_lang"`
	TargetLang string `json:"target_lang" form:"target_lang"`
}

// BatchTranslationRequest is the body of POST /translate/batch.
type BatchTranslationRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

// TranslationResult is one translated text.
type TranslationResult struct {
	OriginalText   string   `json:"original_text"`
	TranslatedText string   `json:"translated_text"`
	SourceLang     string   `json:"source_lang"`
	TargetLang     string   `json:"target_lang"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// BatchTranslationResponse is the answer of POST /translate/batch.
type BatchTranslationResponse struct {
	Translations []TranslationResult `json:"translations"`
}

// QuickTranslationResponse is the answer of the quick test endpoints.
type QuickTranslationResponse struct {
	Message        string `json:"message"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLang     string `json:"source_lang"`
	TargetLang     string `json:"target_lang"`
}

// HealthResponse is the answer of GET /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	ModelsLoaded bool     `json:"models_loaded"`
	Models       []string `json:"models"`
}

// SupportedLanguages lists the accepted language codes.
type SupportedLanguages struct {
	Source []string `json:"source"`
	Target []string `json:"target"`
}

// LanguagesResponse is the answer of GET /languages.
type LanguagesResponse struct {
	SupportedLanguages SupportedLanguages `json:"supported_languages"`
	Models             []string           `json:"models"`
	Names              map[string]string  `json:"names"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
