package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidURL  = errors.New("invalid URL")
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists for URL")
	ErrNotActive   = errors.New("job is not active")
)

// Category is the closed set of user-facing failure reasons.
type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryAccessDenied  Category = "access-denied"
	CategoryNotFound      Category = "not-found"
	CategoryUnavailable   Category = "content-unavailable"
	CategoryBlocked       Category = "blocked-by-source"
	CategoryStorage       Category = "storage"
	CategoryConfiguration Category = "configuration"
	CategoryUnknown       Category = "unknown"
)

// Transient reports whether retrying a failure of this category can help.
// Remote-state failures (access, existence, availability) and local ones
// (storage, configuration) fail fast.
func (c Category) Transient() bool {
	switch c {
	case CategoryNetwork, CategoryBlocked, CategoryUnknown:
		return true
	}
	return false
}

// Message returns the human-readable reason shown on the job.
func (c Category) Message() string {
	switch c {
	case CategoryNetwork:
		return "Network connection error. Check your internet connection."
	case CategoryAccessDenied:
		return "Access denied by the source."
	case CategoryNotFound:
		return "Content not found."
	case CategoryUnavailable:
		return "Content unavailable or private."
	case CategoryBlocked:
		return "Request blocked by the source. Try again later."
	case CategoryStorage:
		return "Cannot write to the download directory."
	case CategoryConfiguration:
		return "Invalid download configuration."
	default:
		return "Download failed."
	}
}

// FetchError is a fetch failure carrying its classified category.
type FetchError struct {
	Category Category
	Msg      string
}

func (e *FetchError) Error() string {
	return e.Msg
}

// NewFetchError builds a FetchError with an explicit category.
func NewFetchError(c Category, msg string) *FetchError {
	return &FetchError{Category: c, Msg: msg}
}

// Classify maps an error to a failure category. Errors that already carry a
// category keep it; everything else is classified by the raw message text.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ClassifyText(err.Error())
}

// ClassifyText classifies raw fetcher output by substring rules.
func ClassifyText(raw string) Category {
	s := strings.ToLower(raw)
	switch {
	case containsAny(s, "network", "connection", "timed out", "timeout", "temporary failure", "unable to download webpage"):
		return CategoryNetwork
	case containsAny(s, "403", "forbidden", "access denied", "sign in to confirm your age", "login required"):
		return CategoryAccessDenied
	case containsAny(s, "404", "not found", "does not exist", "no such"):
		return CategoryNotFound
	case containsAny(s, "unavailable", "private video", "removed", "deleted", "members-only"):
		return CategoryUnavailable
	case containsAny(s, "429", "too many requests", "rate limit", "captcha", "sign in to confirm you're not a bot", "blocked"):
		return CategoryBlocked
	case containsAny(s, "no space left", "permission denied", "read-only file system", "cannot create", "not writable"):
		return CategoryStorage
	case containsAny(s, "unsupported url", "invalid option", "invalid url", "is not a valid url"):
		return CategoryConfiguration
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
