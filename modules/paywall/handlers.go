package paywall

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/confeitaria/handler"
	"github.com/dmitrymomot/confeitaria/pkg/binder"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/svc/billing"
	"github.com/dmitrymomot/confeitaria/svc/identity"
)

const maxWebhookBody = 1 << 20

var (
	errPaymentsNotConfigured = handler.NewHTTPError(http.StatusInternalServerError, "payments are not configured")
	errEmailMismatch         = handler.NewHTTPError(http.StatusForbidden, "email does not match the signed-in account")
)

type handlers struct {
	cfg      Config
	webhooks *billing.WebhookService
	checkout *billing.CheckoutService
	query    *billing.QueryService
	gate     *billing.Gate
	sessions *identity.Manager
	log      *slog.Logger
}

func handlerWrap[R any](h handler.HandlerFunc[R], onError handler.ErrorHandler, binders ...binder.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinder[R](binders...),
		handler.WithErrorHandler[R](onError),
	)
}

type webhookRequest struct {
	Payload   []byte
	Signature string
}

// bindWebhook keeps the body as raw bytes; the signature covers them exactly.
func bindWebhook(r *http.Request, v any) error {
	req, ok := v.(*webhookRequest)
	if !ok {
		return binder.ErrUnsupportedMediaType
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return binder.ErrBodyTooLarge
		}
		return errors.Join(handler.ErrBadRequest, err)
	}
	req.Payload = body
	req.Signature = r.Header.Get("Stripe-Signature")
	return nil
}

type webhookResponse struct {
	Received bool `json:"received"`
}

func (h *handlers) webhook(ctx handler.Context, req webhookRequest) handler.Response {
	res, err := h.webhooks.Handle(ctx, req.Payload, req.Signature)
	if err != nil {
		return fail(err)
	}
	h.log.DebugContext(ctx, "webhook handled",
		logger.Outcome(string(res.Outcome)), slog.String("state", res.State))
	return handler.JSON(webhookResponse{Received: true})
}

type checkoutRequest struct {
	Email     string `json:"email" validate:"required,email"`
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

func (h *handlers) createCheckout(ctx handler.Context, req checkoutRequest) handler.Response {
	if err := h.authorizeEmail(ctx, req.Email); err != nil {
		return fail(err)
	}
	sess, err := h.checkout.CreateSession(ctx, req.Email, req.ReturnURL)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(checkoutResponse{SessionID: sess.ID, URL: sess.URL})
}

type checkSubscriptionRequest struct {
	Email string `json:"email" validate:"required"`
}

type checkSubscriptionResponse struct {
	Error                 string `json:"error,omitempty"`
	HasActiveSubscription bool   `json:"hasActiveSubscription"`
}

func (h *handlers) checkSubscription(ctx handler.Context, req checkSubscriptionRequest) handler.Response {
	if err := h.authorizeEmail(ctx, req.Email); err != nil {
		return fail(err)
	}
	if !h.query.Configured() {
		return handler.JSONWithStatus(errPaymentsNotConfigured.Code, checkSubscriptionResponse{
			Error: errPaymentsNotConfigured.Key,
		})
	}
	return handler.JSON(checkSubscriptionResponse{
		HasActiveSubscription: h.query.HasActiveSubscription(ctx, req.Email),
	})
}

type accessRequest struct{}

type accessResponse struct {
	Decision billing.Decision `json:"decision"`
	Location string           `json:"location,omitempty"`
}

func (h *handlers) access(ctx handler.Context, _ accessRequest) handler.Response {
	sess, ok := identity.SessionFromContext(ctx)
	v := h.gate.Admit(ctx, billing.AccessRequest{
		Authenticated: ok,
		Email:         sess.Email,
		SessionMarker: ctx.Request().URL.Query().Get("session_id"),
	})
	return handler.JSON(accessResponse{Decision: v.Decision, Location: h.cfg.location(v.Decision)})
}

func (h *handlers) logout(ctx handler.Context, _ struct{}) handler.Response {
	sess, ok := identity.SessionFromContext(ctx)
	if !ok {
		return fail(handler.ErrUnauthorized)
	}
	if h.sessions != nil {
		if err := h.sessions.End(ctx, sess); err != nil {
			h.log.WarnContext(ctx, "failed to end session", logger.SessionID(sess.ID), logger.Error(err))
		}
	}
	return handler.Empty()
}

type configResponse struct {
	PublishableKey string `json:"publishableKey"`
	FunctionsURL   string `json:"functionsUrl"`
}

func (h *handlers) clientConfig(ctx handler.Context, _ struct{}) handler.Response {
	return handler.JSON(configResponse{PublishableKey: h.cfg.PublishableKey, FunctionsURL: h.cfg.FunctionsURL})
}

// authorizeEmail enforces that a signed-in caller only acts on its own email
// when sessions are required.
func (h *handlers) authorizeEmail(ctx handler.Context, email string) error {
	if !h.cfg.RequireSession {
		return nil
	}
	sess, ok := identity.SessionFromContext(ctx)
	if !ok {
		return handler.ErrUnauthorized
	}
	if sess.Email != email {
		return errEmailMismatch
	}
	return nil
}
