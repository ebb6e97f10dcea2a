package pipeline

import (
	"strings"
	"unicode"

	apperrors "github.com/facturaIA/textscan-service/internal/errors"
)

// User-facing messages. Every failed cycle shows exactly one of these.
const (
	MessageNoText       = "No text detected"
	MessageModelLoading = "Text recognition is still loading. Please try again."
	MessageMemory       = "Not enough memory to process the image."
	MessageCamera       = "Camera unavailable. Check camera access."
	MessageGeneric      = "Scan failed. Please try again."
)

type messageBucket struct {
	message string
	phrases []string
	words   []string
	codes   []apperrors.ErrorCode
}

// Checked in order; the first match wins.
var buckets = []messageBucket{
	{
		message: MessageModelLoading,
		phrases: []string{"not ready", "not initialized", "not loaded", "still loading", "model loading"},
		codes:   []apperrors.ErrorCode{apperrors.RecognizerUnavailable},
	},
	{
		message: MessageMemory,
		phrases: []string{"out of memory", "memory"},
		words:   []string{"oom"},
	},
	{
		message: MessageCamera,
		phrases: []string{"camera", "capture", "frame", "source", "permission"},
		codes:   []apperrors.ErrorCode{apperrors.CaptureFailed, apperrors.Busy},
	},
}

// UserMessage maps a failure kind and its technical description to a
// user-facing string.
func UserMessage(code apperrors.ErrorCode, technical string) string {
	if code == apperrors.NoTextDetected {
		return MessageNoText
	}
	lower := strings.ToLower(technical)
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })

	for _, b := range buckets {
		for _, c := range b.codes {
			if c == code {
				return b.message
			}
		}
		for _, p := range b.phrases {
			if strings.Contains(lower, p) {
				return b.message
			}
		}
		for _, w := range b.words {
			for _, got := range words {
				if got == w {
					return b.message
				}
			}
		}
	}
	return MessageGeneric
}
