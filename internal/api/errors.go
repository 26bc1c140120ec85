// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"errors"

	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/recerr"
	"github.com/shelfwise/shelfwise/internal/validation"
)

// writeServiceError maps an engine error to its HTTP representation. The
// error taxonomy lives in recerr; this is the single place where kinds turn
// into status codes. Validation kinds carry per-field details when the
// underlying error is a RequestValidationError.
func writeServiceError(rw *ResponseWriter, err error) {
	switch recerr.KindOf(err) {
	case recerr.KindValidation:
		var ve *validation.RequestValidationError
		if errors.As(err, &ve) {
			apiErr := ve.ToAPIError()
			rw.ValidationError(apiErr.Message, apiErr.Details)
			return
		}
		rw.ValidationError(err.Error(), nil)

	case recerr.KindConflict:
		rw.Conflict(err.Error())

	case recerr.KindNotFound:
		rw.NotFound(err.Error())

	case recerr.KindUpstream:
		logging.Error().Err(err).Msg("upstream collaborator failed")
		rw.UpstreamError(err.Error())

	default:
		logging.Error().Err(err).Msg("internal error")
		rw.InternalError("An internal error occurred")
	}
}
