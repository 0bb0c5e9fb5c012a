// Package forms serves the public form intake API used by the site's
// contact, quote and support pages.
package forms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenforge/lumenforge-web/internal/botguard"
	"github.com/lumenforge/lumenforge-web/internal/guard"
	"github.com/lumenforge/lumenforge-web/internal/httpmw"
	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/notify"
	"github.com/lumenforge/lumenforge-web/internal/ratelimit"
	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// Outcome labels, shared with the form_submissions_total metric.
const (
	OutcomeAccepted       = "accepted"
	OutcomeRateLimited    = "rate_limited"
	OutcomeBot            = "bot"
	OutcomeInvalid        = "invalid"
	OutcomeBadRequest     = "bad_request"
	OutcomeDeliveryFailed = "delivery_failed"
)

type Options struct {
	Logger  log.Logger
	Limiter *ratelimit.Limiter
	Sink    notify.Sink

	// OnOutcome is called once per submission, used for metrics
	OnOutcome func(kind, outcome string)
	// OnBotRule is called for each scoring rule that fired on a bot
	OnBotRule func(rule string)

	// for tests
	Now   func() time.Time
	NewID func() string
}

type API struct {
	opts  Options
	guard *guard.Guard
}

func NewAPI(opts Options) (*API, error) {
	if opts.Limiter == nil {
		return nil, xerrors.New("forms: limiter is required")
	}
	if opts.Sink == nil {
		return nil, xerrors.New("forms: sink is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	api := &API{opts: opts}
	api.guard = guard.New(opts.Limiter, guard.WithOnBot(api.botDetected))
	return api, nil
}

// RegisterRoutes attaches the form endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/forms/honeypot", api.HandleHoneypot)
	r.Post("/api/forms/{kind}", api.HandleSubmit)
}

// HandleHoneypot describes the hidden field the SPA renders on every form.
func (api *API) HandleHoneypot(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(r.Context(), w, http.StatusOK, botguard.GenerateHoneypotField())
}

type receivedResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// HandleSubmit runs a submission through the rate limiter, bot scoring and
// validation, then hands it to the sink.
func (api *API) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := chi.URLParam(r, "kind")
	if _, ok := kinds[kind]; !ok {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "unknown form"})
		return
	}
	lg := log.FromContext(ctx)

	raw, err := decodeForm(w, r)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, errTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, errUnsupportedType):
			status = http.StatusUnsupportedMediaType
		}
		lg.Debug(ctx, "rejected form body", "kind", kind, "reason", err.Error())
		api.outcome(kind, OutcomeBadRequest)
		api.writeJSON(ctx, w, status, errorResponse{Error: http.StatusText(status)})
		return
	}

	clientIP := httpmw.ClientIPFromContext(ctx)
	ua := r.UserAgent()
	v := api.guard.Check(ctx, guard.Request{Key: clientIP, Form: raw, UserAgent: ua})
	ratelimit.SetHeaders(w.Header(), api.opts.Limiter.Limit(), v.Limit, api.opts.Now())

	switch v.Decision {
	case guard.RateLimited:
		api.outcome(kind, OutcomeRateLimited)
		ratelimit.WriteTooManyRequests(w)
		return
	case guard.Bot:
		// same response as a real submission
		lg.Info(ctx, "dropped bot submission",
			"kind", kind,
			"confidence", v.Bot.Confidence,
			"reasons", v.Bot.Reasons,
		)
		api.outcome(kind, OutcomeBot)
		api.writeJSON(ctx, w, http.StatusAccepted, receivedResponse{Status: "received"})
		return
	}

	fields, problems, err := bind(kind, raw)
	if err != nil {
		lg.Error(ctx, err, "form validation failed", "kind", kind)
		api.outcome(kind, OutcomeBadRequest)
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "bad request"})
		return
	}
	if problems != nil {
		api.outcome(kind, OutcomeInvalid)
		api.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid submission", Fields: problems})
		return
	}

	sub := notify.Submission{
		ID:         api.opts.NewID(),
		Kind:       kind,
		Fields:     fields,
		ClientIP:   clientIP,
		UserAgent:  ua,
		ReceivedAt: api.opts.Now().UTC(),
		BotScore:   v.Bot.Confidence,
	}
	if err := api.opts.Sink.Deliver(ctx, sub); err != nil {
		lg.Error(ctx, err, "submission delivery failed", "kind", kind, "submission_id", sub.ID)
		api.outcome(kind, OutcomeDeliveryFailed)
		api.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{Error: "could not deliver submission"})
		return
	}

	api.outcome(kind, OutcomeAccepted)
	api.writeJSON(ctx, w, http.StatusAccepted, receivedResponse{Status: "received", ID: sub.ID})
}

func (api *API) botDetected(v guard.Verdict) {
	if api.opts.OnBotRule == nil {
		return
	}
	for _, rule := range v.Rules {
		api.opts.OnBotRule(rule)
	}
}

func (api *API) outcome(kind, outcome string) {
	if api.opts.OnOutcome != nil {
		api.opts.OnOutcome(kind, outcome)
	}
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.opts.Logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
