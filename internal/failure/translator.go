// Package failure turns internal errors into messages that are safe to show
// to end users. Translate never fails and never echoes upstream text.
package failure

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/af-corp/aegis-chat/internal/orchestrator"
)

// Category is the closed set of user-facing failure classes.
type Category string

const (
	CategorySafetyRejection     Category = "safety_rejection"
	CategoryProviderUnavailable Category = "provider_unavailable"
	CategoryValidation          Category = "validation"
)

// UserFacingError is what the caller is allowed to see.
type UserFacingError struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Status   int      `json:"-"`
}

// safetyVocabulary is matched case-insensitively against the raw error text.
var safetyVocabulary = []string{
	"moderation",
	"flagged",
	"blocked",
	"content policy",
	"content_policy",
	"content filter",
	"content_filter",
	"policy violation",
	"usage policies",
	"safety system",
	"responsibleaipolicyviolation",
}

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

var messages = map[string]map[Category]string{
	"en": {
		CategorySafetyRejection: "I can't help with that specific request, but I'd be glad to help with something related. " +
			"Try rephrasing your question or ask about a different angle of the topic.",
		CategoryProviderUnavailable: "The service is busy right now. Please try again in a moment.",
		CategoryValidation:          "The request could not be processed. Please check your message and try again.",
	},
	"es": {
		CategorySafetyRejection: "No puedo ayudarte con esa solicitud en particular, pero con gusto te ayudo con algo relacionado. " +
			"Intenta reformular tu pregunta o consulta otro aspecto del tema.",
		CategoryProviderUnavailable: "El servicio está ocupado en este momento. Por favor, inténtalo de nuevo en unos instantes.",
		CategoryValidation:          "No se pudo procesar la solicitud. Revisa tu mensaje e inténtalo de nuevo.",
	},
}

// Translate classifies err and returns the localized message for locale,
// which may be a BCP 47 tag or an Accept-Language value. Unknown locales fall
// back to English.
func Translate(err error, locale string) (out UserFacingError) {
	lang := Language(locale)
	defer func() {
		if recover() != nil {
			out = build(CategoryProviderUnavailable, lang)
		}
	}()
	return build(Classify(err), lang)
}

// Classify picks the failure category for err. A nil error is treated as an
// unavailable provider so callers always get a usable answer.
func Classify(err error) Category {
	if err == nil {
		return CategoryProviderUnavailable
	}
	if errors.Is(err, orchestrator.ErrInvalidRequest) {
		return CategoryValidation
	}
	if IsSafetyRejection(err) {
		return CategorySafetyRejection
	}
	return CategoryProviderUnavailable
}

// IsSafetyRejection reports whether the error text matches the provider
// content-policy vocabulary.
func IsSafetyRejection(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, term := range safetyVocabulary {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// Language returns the supported base language ("en" or "es") closest to
// locale.
func Language(locale string) string {
	if strings.TrimSpace(locale) == "" {
		return "en"
	}
	tag, _ := language.MatchStrings(matcher, locale)
	base, _ := tag.Base()
	if _, ok := messages[base.String()]; ok {
		return base.String()
	}
	return "en"
}

func build(cat Category, lang string) UserFacingError {
	return UserFacingError{Category: cat, Message: messages[lang][cat], Status: statusFor(cat)}
}

func statusFor(cat Category) int {
	switch cat {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategorySafetyRejection:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}
