package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/conversation"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var statuses = map[conversation.Outcome]int{
	conversation.OutcomeInvalidFormat:      http.StatusBadRequest,
	conversation.OutcomeNotFound:           http.StatusNotFound,
	conversation.OutcomeCollision:          http.StatusConflict,
	conversation.OutcomeCollisionExhausted: http.StatusServiceUnavailable,
	conversation.OutcomeEmailRequired:      http.StatusConflict,
	conversation.OutcomeAlreadyVerified:    http.StatusConflict,
	conversation.OutcomeNotVerified:        http.StatusConflict,
	conversation.OutcomeCompleted:          http.StatusConflict,
	conversation.OutcomeResendThrottled:    http.StatusTooManyRequests,
	conversation.OutcomeRateLimited:        http.StatusTooManyRequests,
	conversation.OutcomeDispatchFailed:     http.StatusBadGateway,
	conversation.OutcomeIncorrect:          http.StatusUnprocessableEntity,
	conversation.OutcomeExpired:            http.StatusUnprocessableEntity,
	conversation.OutcomeAttemptsExhausted:  http.StatusGone,
	conversation.OutcomeUnavailable:        http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status used for outcome.
func StatusFor(o conversation.Outcome) int {
	if s, ok := statuses[o]; ok {
		return s
	}
	return http.StatusOK
}

// errorResponse builds the body for a failed engine call. Typed errors copy
// their data into the response.
func errorResponse(err error) Response {
	outcome := goOnboard.OutcomeOf(err)
	res := Response{Outcome: outcome, Message: messageFor(outcome)}

	var (
		throttle  *goOnboard.ThrottleError
		limited   *goOnboard.RateLimitError
		incorrect *goOnboard.IncorrectCodeError
		exhausted *goOnboard.AttemptsExhaustedError
	)
	switch {
	case errors.As(err, &throttle):
		res.WaitSeconds = goOnboard.WaitSeconds(throttle.Wait)
		res.ResendsRemaining = intPtr(throttle.ResendsRemaining)
	case errors.As(err, &limited):
		res.RetryAfterSeconds = goOnboard.WaitSeconds(limited.RetryAfter)
	case errors.As(err, &incorrect):
		res.AttemptsRemaining = intPtr(incorrect.AttemptsRemaining)
	case errors.As(err, &exhausted):
		res.SessionID = exhausted.NextSessionID
	}
	return res
}

func (s *server) writeError(c *gin.Context, op string, err error) {
	s.writeResponse(c, op, errorResponse(err), err)
}

// writeResponse sends res with the status for its outcome. cause is logged
// when the outcome is unavailable.
func (s *server) writeResponse(c *gin.Context, op string, res Response, cause error) {
	if res.Outcome == conversation.OutcomeUnavailable {
		s.log.WithFields(logrus.Fields{
			"op":         op,
			"session_id": c.Param("id"),
			"error":      cause,
		}).Error("request failed")
	}

	if secs := res.WaitSeconds + res.RetryAfterSeconds; secs > 0 {
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	c.JSON(StatusFor(res.Outcome), res)
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, Response{
		Outcome: conversation.OutcomeInvalidFormat,
		Message: "malformed request body",
	})
}
