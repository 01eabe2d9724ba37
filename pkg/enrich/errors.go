package enrich

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/papercomputeco/weave/pkg/analysis"
)

// Category is the closed set of failure categories an item can end in.
type Category string

const (
	CategoryInsufficientContent Category = "insufficient-content"
	CategoryNotFound            Category = "not-found"
	CategoryForbidden           Category = "forbidden"
	CategoryAIAuth              Category = "ai-auth"
	CategoryAITimeout           Category = "ai-timeout"
	CategoryAIQuota             Category = "ai-quota"
	CategoryNetwork             Category = "network"
	CategoryModelUnavailable    Category = "model-unavailable"
	CategoryUnknown             Category = "unknown"
)

var messages = map[Category]string{
	CategoryInsufficientContent: "This note doesn't have enough content to analyze. Add a few more words and try again.",
	CategoryNotFound:            "This note could not be found.",
	CategoryForbidden:           "You don't have access to this note.",
	CategoryAIAuth:              "The AI service rejected our credentials. Please contact support.",
	CategoryAITimeout:           "The AI service took too long to respond. Please try again.",
	CategoryAIQuota:             "The AI service is rate limited right now. Please try again later.",
	CategoryNetwork:             "We couldn't reach the AI service. Please check your connection and try again.",
	CategoryModelUnavailable:    "The AI model is temporarily unavailable. Please try again later.",
	CategoryUnknown:             "Something went wrong while processing this note. Please try again.",
}

// Message returns the fixed user-safe message of the category.
func (c Category) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[CategoryUnknown]
}

// Retryable reports whether a later attempt may succeed unchanged.
func (c Category) Retryable() bool {
	switch c {
	case CategoryAITimeout, CategoryNetwork, CategoryAIQuota:
		return true
	default:
		return false
	}
}

// Error is a categorized processing failure. Message is safe to show to
// the note's owner; Err keeps the cause for logs.
type Error struct {
	Category Category
	Message  string
	Err      error
}

// NewError builds an Error with the category's message.
func NewError(category Category, err error) *Error {
	return &Error{
		Category: category,
		Message:  category.Message(),
		Err:      err,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Category) + ": " + e.Err.Error()
	}
	return string(e.Category) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on retry.
func (e *Error) Retryable() bool {
	return e.Category.Retryable()
}

// IsCategory reports whether err is an *Error of the given category.
func IsCategory(err error, category Category) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == category
}

var analysisKinds = map[analysis.Kind]Category{
	analysis.KindAuth:             CategoryAIAuth,
	analysis.KindTimeout:          CategoryAITimeout,
	analysis.KindQuota:            CategoryAIQuota,
	analysis.KindNetwork:          CategoryNetwork,
	analysis.KindModelUnavailable: CategoryModelUnavailable,
	analysis.KindBadResponse:      CategoryUnknown,
	analysis.KindUnknown:          CategoryUnknown,
}

type keywordRule struct {
	category Category
	words    []string
}

var keywordRules = []keywordRule{
	{CategoryAIAuth, []string{"api key", "apikey", "unauthorized", "authentication"}},
	{CategoryAITimeout, []string{"timeout", "timed out", "deadline"}},
	{CategoryAIQuota, []string{"quota", "rate limit", "429", "too many requests"}},
	{CategoryNetwork, []string{"connection refused", "network", "econn", "no such host"}},
	{CategoryModelUnavailable, []string{"model not found", "overloaded", "unavailable"}},
}

// Classify maps any error onto a category. Tagged errors win over
// message matching.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var tagged *analysis.Error
	if errors.As(err, &tagged) {
		category, ok := analysisKinds[tagged.Kind]
		if !ok {
			category = CategoryUnknown
		}
		return NewError(category, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryAITimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(CategoryAITimeout, err)
		}
		return NewError(CategoryNetwork, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewError(CategoryNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range keywordRules {
		for _, w := range rule.words {
			if strings.Contains(msg, w) {
				return NewError(rule.category, err)
			}
		}
	}

	return NewError(CategoryUnknown, err)
}
