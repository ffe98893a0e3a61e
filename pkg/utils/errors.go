package utils

import (
	"context"
	"errors"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrSelectorMiss     = errors.New("no element matched selector candidates") // Expected, non-fatal; retried on next mutation
	ErrSelectorSet      = errors.New("invalid selector set")                   // Provider data failed structural validation
	ErrProvider         = errors.New("selector provider rejected")             // Integrity token mismatch or provider failure
	ErrBridgeRejected   = errors.New("bridge request rejected")                // Wrong sender, unknown type, or malformed payload
	ErrRateLimited      = errors.New("send rejected by rate limiter")          // Normal control flow, not a failure
	ErrQuotaExceeded    = errors.New("send rejected by message quota")         // Normal control flow, not a failure
	ErrPageDetached     = errors.New("element detached from document")         // Document was replaced under a held handle
	ErrDatabase         = errors.New("database error")                         // Wraps badger errors
	ErrParsing          = errors.New("parsing error")                          // Wraps HTML/JSON/selector parse errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrSelectorMiss):
		return "Selector_Miss"
	case errors.Is(err, ErrSelectorSet):
		return "Selector_InvalidSet"
	case errors.Is(err, ErrProvider):
		return "Selector_Provider"
	case errors.Is(err, ErrBridgeRejected):
		return "Bridge_Rejected"
	case errors.Is(err, ErrRateLimited):
		return "Gate_RateLimited"
	case errors.Is(err, ErrQuotaExceeded):
		return "Gate_Quota"
	case errors.Is(err, ErrPageDetached):
		return "Page_Detached"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "selector") {
			return "Content_ParsingSelector"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	return "Unknown"
}

// IsGateRejection reports whether err is a rate-limit or quota rejection,
// i.e. a normal skip-this-turn outcome rather than a failure.
func IsGateRejection(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQuotaExceeded)
}
