package gmail

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"aaronromeo.com/inboxsweep/pkg/base"
	"google.golang.org/api/googleapi"
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// classify maps Gmail API and transport errors onto the base taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return base.Classify(base.ErrRateLimited, err)
		case apiErr.Code == http.StatusForbidden && hasReason(apiErr, rateLimitReasons):
			return base.Classify(base.ErrRateLimited, err)
		case apiErr.Code >= 500:
			return base.Classify(base.ErrProviderHardFailure, err)
		case apiErr.Code >= 400:
			return base.Classify(base.ErrValidation, err)
		}
		return base.Classify(base.ErrProviderHardFailure, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return base.Classify(base.ErrNetworkUnavailable, err)
	}
	return base.Classify(base.ErrProviderHardFailure, err)
}

func hasReason(apiErr *googleapi.Error, reasons map[string]bool) bool {
	for _, item := range apiErr.Errors {
		if reasons[item.Reason] {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "exists") ||
		apiErr.Code == http.StatusConflict
}
