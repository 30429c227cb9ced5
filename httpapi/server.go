package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/conversation"
	"github.com/MrEthical07/goOnboard/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Service is the engine surface the API exposes. *goOnboard.Engine
// implements it.
type Service interface {
	IssueIdentifier(ctx context.Context, proposed string) (goOnboard.IdentifierResult, error)
	StartSession(ctx context.Context, opts goOnboard.StartOptions) (goOnboard.SessionView, error)
	Session(ctx context.Context, sessionID string) (goOnboard.SessionView, error)
	SetName(ctx context.Context, sessionID, name string) (goOnboard.SessionView, error)
	SetEmail(ctx context.Context, sessionID, email string) (goOnboard.SessionView, error)
	SendCode(ctx context.Context, sessionID string) (goOnboard.SendResult, error)
	ResendCode(ctx context.Context, sessionID string) (goOnboard.SendResult, error)
	ValidateCode(ctx context.Context, sessionID, code string) error
	CompleteSession(ctx context.Context, sessionID string) (goOnboard.SessionView, error)
	ResetSession(ctx context.Context, sessionID string) (goOnboard.SessionView, error)
}

// Tickets issues and checks session tickets. *ticket.Manager implements it.
type Tickets interface {
	Issue(sessionID string) (string, time.Time, error)
	middleware.TicketVerifier
}

// Options configures [NewRouter].
type Options struct {
	Service Service
	Tickets Tickets
	Logger  logrus.FieldLogger
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
	// TrustedProxies lists proxies whose forwarding headers name the client.
	// Nil trusts none.
	TrustedProxies []string
}

type server struct {
	svc     Service
	tickets Tickets
	log     logrus.FieldLogger
}

// NewRouter returns a gin engine serving the onboarding API.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, errors.New("httpapi: service required")
	}
	if opts.Tickets == nil {
		return nil, errors.New("httpapi: tickets required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery(), requestLogger(opts.Logger), middleware.ClientIP())

	s := &server{svc: opts.Service, tickets: opts.Tickets, log: opts.Logger}

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/identifiers", s.issueIdentifier)
		v1.POST("/sessions", s.startSession)
	}

	sessions := v1.Group("/sessions/:id", middleware.RequireTicket(opts.Tickets, "id"))
	{
		sessions.GET("", s.getSession)
		sessions.PUT("/name", s.setName)
		sessions.PUT("/email", s.setEmail)
		sessions.POST("/verification/send", s.sendCode)
		sessions.POST("/verification/resend", s.resendCode)
		sessions.POST("/verification/validate", s.validateCode)
		sessions.POST("/complete", s.complete)
		sessions.POST("/reset", s.reset)
	}

	return r, nil
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *server) issueIdentifier(c *gin.Context) {
	var req identifierRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c)
		return
	}

	result, err := s.svc.IssueIdentifier(c.Request.Context(), req.Identifier)
	if err != nil {
		res := errorResponse(err)
		if result.Status != "" {
			res.Status = result.Status
			res.Message = result.Message
		}
		s.writeResponse(c, "issue_identifier", res, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Outcome:    conversation.OutcomeOK,
		Message:    result.Message,
		Status:     result.Status,
		Identifier: result.Identifier,
	})
}

func (s *server) startSession(c *gin.Context) {
	var req startRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c)
		return
	}

	view, err := s.svc.StartSession(c.Request.Context(), goOnboard.StartOptions{
		Identifier:  req.Identifier,
		DataConsent: req.DataConsent,
	})
	if err != nil {
		s.writeError(c, "start_session", err)
		return
	}

	res, ok := s.withTicket(c, "start_session", view)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, res)
}

// withTicket builds a session response carrying a fresh ticket. On failure
// it writes the error response and reports false.
func (s *server) withTicket(c *gin.Context, op string, view goOnboard.SessionView) (Response, bool) {
	token, expires, err := s.tickets.Issue(view.ID)
	if err != nil {
		s.writeError(c, op, err)
		return Response{}, false
	}
	return Response{
		Outcome:         conversation.OutcomeOK,
		Message:         messageFor(conversation.OutcomeOK),
		SessionID:       view.ID,
		Ticket:          token,
		TicketExpiresAt: &expires,
		State:           view.State.String(),
		Session:         sessionBody(view),
	}, true
}

func (s *server) writeView(c *gin.Context, op string, view goOnboard.SessionView, err error) {
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Outcome:   conversation.OutcomeOK,
		Message:   messageFor(conversation.OutcomeOK),
		SessionID: view.ID,
		State:     view.State.String(),
		Session:   sessionBody(view),
	})
}

func (s *server) getSession(c *gin.Context) {
	view, err := s.svc.Session(c.Request.Context(), c.Param("id"))
	s.writeView(c, "get_session", view, err)
}

func (s *server) setName(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	view, err := s.svc.SetName(c.Request.Context(), c.Param("id"), req.Name)
	s.writeView(c, "set_name", view, err)
}

func (s *server) setEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	view, err := s.svc.SetEmail(c.Request.Context(), c.Param("id"), req.Email)
	s.writeView(c, "set_email", view, err)
}

func (s *server) complete(c *gin.Context) {
	view, err := s.svc.CompleteSession(c.Request.Context(), c.Param("id"))
	s.writeView(c, "complete_session", view, err)
}

func (s *server) reset(c *gin.Context) {
	view, err := s.svc.ResetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "reset_session", err)
		return
	}
	res, ok := s.withTicket(c, "reset_session", view)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *server) sendCode(c *gin.Context) {
	result, err := s.svc.SendCode(c.Request.Context(), c.Param("id"))
	s.writeSend(c, "send_code", result, err)
}

func (s *server) resendCode(c *gin.Context) {
	result, err := s.svc.ResendCode(c.Request.Context(), c.Param("id"))
	s.writeSend(c, "resend_code", result, err)
}

func (s *server) writeSend(c *gin.Context, op string, result goOnboard.SendResult, err error) {
	res := Response{Outcome: conversation.OutcomeSent, Message: messageFor(conversation.OutcomeSent)}
	if err != nil {
		res = errorResponse(err)
	}
	if err == nil || errors.Is(err, goOnboard.ErrDispatchFailure) {
		res.SessionID = result.SessionID
		res.ExpiresAt = optionalTime(result.ExpiresAt)
		res.ResendsRemaining = intPtr(result.ResendsRemaining)
	}
	s.writeResponse(c, op, res, err)
}

func (s *server) validateCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	sessionID := c.Param("id")
	err := s.svc.ValidateCode(c.Request.Context(), sessionID, req.Code)
	if err == nil {
		c.JSON(http.StatusOK, Response{
			Outcome:   conversation.OutcomeVerified,
			Message:   messageFor(conversation.OutcomeVerified),
			SessionID: sessionID,
		})
		return
	}

	res := errorResponse(err)
	if res.Outcome == conversation.OutcomeAttemptsExhausted && res.SessionID != "" {
		token, expires, terr := s.tickets.Issue(res.SessionID)
		if terr != nil {
			// The replacement exists but cannot be handed over; the client starts anew.
			s.log.WithFields(logrus.Fields{"op": "validate_code", "session_id": res.SessionID, "error": terr}).
				Warn("ticket for replacement session not issued")
			res.SessionID = ""
		} else {
			res.Ticket = token
			res.TicketExpiresAt = &expires
		}
	}
	s.writeResponse(c, "validate_code", res, err)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Debug("request")
	}
}
