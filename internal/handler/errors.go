package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// writeError maps a coordination error to an HTTP response.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotJoined), errors.Is(err, domain.ErrNoSuchRequest):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrRoleMismatch):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrInvalidSeat), errors.Is(err, domain.ErrMalformedPayload):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrAlreadyPending), errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrRelayBusy):
		response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrTransport):
		response.BadGateway(c, err.Error())
	case errors.Is(err, domain.ErrLoopStopped):
		response.ServiceUnavailable(c, "room is closing")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.Error(c, http.StatusGatewayTimeout, "TIMEOUT", "operation timed out")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("unexpected coordination error")
		response.InternalError(c, "internal error")
	}
}

// await waits for a completion or for the request to go away.
func await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
