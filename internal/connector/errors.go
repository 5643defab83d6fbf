package connector

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	apperrors "github.com/crmbridge/bridge-server/internal/errors"
	"github.com/crmbridge/bridge-server/internal/model"
)

// Operation names used in user-facing failure messages.
const (
	OpFindContact      = "find contact"
	OpCreateContact    = "create contact"
	OpCreateCallLog    = "create call log"
	OpUpdateCallLog    = "update call log"
	OpGetCallLog       = "get call log"
	OpCreateMessageLog = "create message log"
	OpUpdateMessageLog = "update message log"
	OpGetUserInfo      = "get user info"
)

// HandleAPIError logs a connector failure with full context and returns the
// sanitized message shown to the user.
func HandleAPIError(err error, platform, operation string) *model.ReturnMessage {
	var httpErr *httpclient.Error
	if errors.As(err, &httpErr) {
		log.Error().
			Str("platform", platform).
			Str("operation", operation).
			Int("status", httpErr.StatusCode).
			Str("body", httpErr.Body).
			Msg("crm request failed")

		switch {
		case httpErr.IsRateLimited():
			return model.ErrorMessage(fmt.Sprintf("%s rate limit reached. Please try again in a minute.", platform)).
				WithDetailText("Rate limit", fmt.Sprintf("%s limits how many requests can be made in a short period of time.", platform))
		case httpErr.IsAuthError():
			return model.ErrorMessage(fmt.Sprintf("Failed to %s.", operation)).
				WithDetailText("How to fix",
					fmt.Sprintf("Your %s authorization may have expired or lacks permission.", platform),
					"Please go to Settings and authorize CRM platform again.")
		}
	} else if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code != apperrors.ErrCodeInternal {
		log.Warn().
			Err(err).
			Str("platform", platform).
			Str("operation", operation).
			Msg("crm operation rejected")
		return model.ErrorMessage(appErr.Message)
	} else {
		log.Error().
			Err(err).
			Str("platform", platform).
			Str("operation", operation).
			Msg("crm operation failed")
	}

	return model.ErrorMessage(fmt.Sprintf("Failed to %s.", operation)).
		WithDetailText("Details", fmt.Sprintf("An error occurred while calling %s. Please try again later.", platform))
}
