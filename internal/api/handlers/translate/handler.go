// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package translate implements the HTTP handlers of the translation API.
package translate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/translateLocal/internal/logging"
	"github.com/traylinx/translateLocal/internal/translation"
)

const (
	defaultSourceLang = translation.SourceLanguage
	defaultTargetLang = "fr"
	quickText         = "Hello, how are you today?"

	detailNotReady    = "Translation service not ready"
	detailTextMissing = "Text parameter is required"
	detailFailed      = "translation failed"
	detailBatchFailed = "batch translation failed"
)

// Translator runs validated translations.
type Translator interface {
	ResolveLanguages(sourceLang, targetLang string) (string, string, error)
	IsReady() bool
	TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// Catalog describes the configured models.
type Catalog interface {
	Languages() []string
	ModelIDs() []string
}

// Handler serves the translation endpoints.
type Handler struct {
	translator Translator
	catalog    Catalog
	version    string
}

// NewHandler creates a handler.
func NewHandler(translator Translator, catalog Catalog, version string) *Handler {
	return &Handler{translator: translator, catalog: catalog, version: version}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/languages", h.Languages)
	r.POST("/translate", h.TranslatePost)
	r.GET("/translate", h.TranslateGet)
	r.POST("/translate/batch", h.TranslateBatch)
	r.GET("/translate/quick", h.Quick)
	r.GET("/translate/quick/hebrew", h.QuickHebrew)
}

// Root returns the service banner.
// GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Translation Service with Real AI Models is running",
		"version": h.version,
		"models":  h.catalog.ModelIDs(),
	})
}

// Health always answers 200 and reports whether models are loaded.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ModelsLoaded: h.translator.IsReady(),
		Models:       h.catalog.ModelIDs(),
	})
}

// Ready answers 503 until every model is loaded.
// GET /ready
func (h *Handler) Ready(c *gin.Context) {
	ready := h.translator.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready})
}

// Languages lists supported source and target languages.
// GET /languages
func (h *Handler) Languages(c *gin.Context) {
	targets := h.catalog.Languages()
	names := make(map[string]string, len(targets)+1)
	names[defaultSourceLang] = translation.DisplayName(defaultSourceLang)
	for _, lang := range targets {
		names[lang] = translation.DisplayName(lang)
	}
	c.JSON(http.StatusOK, LanguagesResponse{
		SupportedLanguages: SupportedLanguages{
			Source: []string{defaultSourceLang},
			Target: targets,
		},
		Models: h.catalog.ModelIDs(),
		Names:  names,
	})
}

// TranslatePost translates a JSON request.
// POST /translate
func (h *Handler) TranslatePost(c *gin.Context) {
	var req TranslationRequest
	if !bindJSON(c, &req) {
		return
	}
	h.translateOne(c, req)
}

// TranslateGet translates query parameters.
// GET /translate?text=...&source_lang=en&target_lang=fr
func (h *Handler) TranslateGet(c *gin.Context) {
	h.translateOne(c, TranslationRequest{
		Text:       c.Query("text"),
		SourceLang: c.Query("source_lang"),
		TargetLang: c.Query("target_lang"),
	})
}

func (h *Handler) translateOne(c *gin.Context, req TranslationRequest) {
	if strings.TrimSpace(req.Text) == "" {
		abortWithDetail(c, http.StatusBadRequest, detailTextMissing)
		return
	}
	src, tgt, ok := h.admit(c, req.SourceLang, req.TargetLang)
	if !ok {
		return
	}

	translated, err := h.translator.TranslateOne(c.Request.Context(), req.Text, src, tgt)
	if err != nil {
		h.writeError(c, err, detailFailed)
		return
	}
	c.JSON(http.StatusOK, TranslationResult{
		OriginalText:   req.Text,
		TranslatedText: translated,
		SourceLang:     src,
		TargetLang:     tgt,
	})
}

// TranslateBatch translates several texts with one model call.
// POST /translate/batch
func (h *Handler) TranslateBatch(c *gin.Context) {
	var req BatchTranslationRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Texts) == 0 {
		abortWithDetail(c, http.StatusBadRequest, "texts must not be empty")
		return
	}
	src, tgt, ok := h.admit(c, req.SourceLang, req.TargetLang)
	if !ok {
		return
	}

	translated, err := h.translator.TranslateBatch(c.Request.Context(), req.Texts, src, tgt)
	if err != nil {
		h.writeError(c, err, detailBatchFailed)
		return
	}
	results := make([]TranslationResult, len(req.Texts))
	for i, text := range req.Texts {
		results[i] = TranslationResult{
			OriginalText:   text,
			TranslatedText: translated[i],
			SourceLang:     src,
			TargetLang:     tgt,
		}
	}
	c.JSON(http.StatusOK, BatchTranslationResponse{Translations: results})
}

// Quick translates a fixed sentence, to French unless target_lang says otherwise.
// GET /translate/quick
func (h *Handler) Quick(c *gin.Context) {
	h.quick(c, c.DefaultQuery("target_lang", defaultTargetLang), "Quick translation test with real AI model")
}

// QuickHebrew translates the fixed sentence to Hebrew.
// GET /translate/quick/hebrew
func (h *Handler) QuickHebrew(c *gin.Context) {
	h.quick(c, "he", "Quick Hebrew translation test with real AI model")
}

func (h *Handler) quick(c *gin.Context, target, message string) {
	src, tgt, ok := h.admit(c, defaultSourceLang, target)
	if !ok {
		return
	}
	translated, err := h.translator.TranslateOne(c.Request.Context(), quickText, src, tgt)
	if err != nil {
		h.writeError(c, err, detailFailed)
		return
	}
	c.JSON(http.StatusOK, QuickTranslationResponse{
		Message:        message,
		OriginalText:   quickText,
		TranslatedText: translated,
		SourceLang:     src,
		TargetLang:     tgt,
	})
}

// admit applies defaults, rejects unsupported languages with 400 and then
// rejects with 503 while models are loading.
func (h *Handler) admit(c *gin.Context, sourceLang, targetLang string) (string, string, bool) {
	if strings.TrimSpace(sourceLang) == "" {
		sourceLang = defaultSourceLang
	}
	if strings.TrimSpace(targetLang) == "" {
		targetLang = defaultTargetLang
	}
	src, tgt, err := h.translator.ResolveLanguages(sourceLang, targetLang)
	if err != nil {
		h.writeError(c, err, detailFailed)
		return "", "", false
	}
	if !h.translator.IsReady() {
		abortWithDetail(c, http.StatusServiceUnavailable, detailNotReady)
		return "", "", false
	}
	return src, tgt, true
}

// writeError maps executor errors to status codes. Causes of server-side
// failures are logged, never echoed.
func (h *Handler) writeError(c *gin.Context, err error, failedDetail string) {
	switch {
	case errors.Is(err, translation.ErrInvalidInput), errors.Is(err, translation.ErrUnsupportedLanguage):
		abortWithDetail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, translation.ErrNotReady):
		abortWithDetail(c, http.StatusServiceUnavailable, detailNotReady)
	case errors.Is(err, context.Canceled):
		logging.WithRequest(c).Debugf("client went away: %v", err)
		abortWithDetail(c, 499, "request cancelled")
	default:
		logging.WithRequest(c).Errorf("%s: %v", failedDetail, err)
		abortWithDetail(c, http.StatusInternalServerError, failedDetail)
	}
}

// bindJSON decodes the body into v and answers 400, or 413 for oversized bodies.
func bindJSON(c *gin.Context, v interface{}) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWithDetail(c, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	abortWithDetail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	return false
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}
