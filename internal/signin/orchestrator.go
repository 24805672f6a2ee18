// Package signin drives one Google sign-in or account-link attempt to a
// single terminal outcome.
//
// Every collaborator call runs off the dispatch queue; every continuation runs
// on it. Stage values (identity, tokens) live on the Attempt and are only read
// by the continuation that follows the call that wrote them.
package signin

import (
	"context"
	"errors"
	"sync"

	"signin-service/internal/auth"
	"signin-service/internal/auth/provider"
	"signin-service/internal/backend"
	"signin-service/internal/dispatch"
	"signin-service/internal/logger"
	"signin-service/internal/metrics"
)

// OutcomeSink receives the terminal outcome of an attempt.
type OutcomeSink interface {
	ReportOutcome(o auth.Outcome)
}

// SinkFunc adapts a function to OutcomeSink.
type SinkFunc func(o auth.Outcome)

func (f SinkFunc) ReportOutcome(o auth.Outcome) { f(o) }

type Orchestrator struct {
	provider provider.IdentityClient
	core     backend.Core
	sink     OutcomeSink
	queue    *dispatch.Queue
}

func New(
	p provider.IdentityClient,
	core backend.Core,
	sink OutcomeSink,
	queue *dispatch.Queue,
) *Orchestrator {
	return &Orchestrator{
		provider: p,
		core:     core,
		sink:     sink,
		queue:    queue,
	}
}

// Initialize configures the provider for cfg's platform.
func (o *Orchestrator) Initialize(cfg Config) {
	o.provider.Configure(cfg.ProviderOptions())
}

// Attempt is one in-flight sign-in.
type Attempt struct {
	link bool
	done chan struct{}

	once     sync.Once
	reported bool

	identity    *auth.Identity
	eligible    bool
	userToken   string
	customToken string
}

// Done is closed when the attempt reaches a terminal node, whether or not
// an outcome was reported.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Reported tells whether the sink received an outcome. Only valid after Done.
func (a *Attempt) Reported() bool {
	<-a.done
	return a.reported
}

func (a *Attempt) finish() {
	a.once.Do(func() { close(a.done) })
}

// AttemptSignIn starts an interactive sign-in and returns immediately.
// With link set the provider credential is attached to the current backend
// session, otherwise it is exchanged for a new session.
func (o *Orchestrator) AttemptSignIn(ctx context.Context, link bool) *Attempt {
	a := &Attempt{link: link, done: make(chan struct{})}

	intent := "signin"
	if link {
		intent = "link"
	}
	metrics.SignInAttempts.WithLabelValues(intent).Inc()

	logger.Info("google sign-in started", map[string]any{"intent": intent})

	if err := o.queue.Post(func() { o.run(ctx, a, stageProviderSignIn) }); err != nil {
		logger.Error("google sign-in not scheduled", map[string]any{"error": err.Error()})
		a.finish()
	}
	return a
}

// SignOut signs out of the provider, then ends the backend session.
// It returns immediately; failures are logged.
func (o *Orchestrator) SignOut(ctx context.Context) {
	o.queue.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return o.apply(ctx, signOutBoth)
	}, func(err error) {
		if err != nil {
			logger.Warn("google sign-out incomplete", map[string]any{"error": err.Error()})
			return
		}
		logger.Info("google signed out", nil)
	}, nil)
}

func (o *Orchestrator) run(ctx context.Context, a *Attempt, st stage) {
	o.queue.Go(ctx, o.work(a, st), func(err error) {
		o.advance(ctx, a, st, err)
	}, o.abandon(a, st))
}

// work returns the collaborator call for st. It runs off the queue.
func (o *Orchestrator) work(a *Attempt, st stage) func(ctx context.Context) error {
	switch st {
	case stageProviderSignIn:
		return func(ctx context.Context) error {
			id, err := o.provider.SignIn(ctx)
			if err == nil && id == nil {
				err = &auth.ProviderError{Status: "InternalError", Message: "no identity returned"}
			}
			a.identity = id
			return err
		}
	case stageLinkEligibility:
		return func(ctx context.Context) error {
			ok, err := o.core.CheckLinkEligibility(ctx, a.identity.Email)
			a.eligible = ok
			return err
		}
	case stageLinkCredential:
		return func(ctx context.Context) error {
			return o.core.LinkCredential(ctx, backend.GoogleCredential(a.identity.IDToken))
		}
	case stageLinkTokenRefresh, stageSessionTokenRefresh:
		return func(ctx context.Context) error {
			tok, err := o.core.RefreshIDToken(ctx, false)
			a.userToken = tok
			return err
		}
	case stageBackendLink:
		return func(ctx context.Context) error {
			return o.core.LinkProvider(ctx, a.userToken)
		}
	case stageExchangeCredential:
		return func(ctx context.Context) error {
			return o.core.ExchangeCredential(ctx, backend.GoogleCredential(a.identity.IDToken))
		}
	case stageMintCustomToken:
		return func(ctx context.Context) error {
			tok, err := o.core.MintCustomToken(ctx, a.userToken)
			a.customToken = tok
			return err
		}
	case stageSessionStart:
		return func(ctx context.Context) error {
			return o.core.StartSession(ctx, a.customToken)
		}
	}
	return func(context.Context) error {
		return errors.New("signin: no work for stage " + st.String())
	}
}

// advance runs on the queue after st's call returned err.
func (o *Orchestrator) advance(ctx context.Context, a *Attempt, st stage, err error) {
	r := resultOf(err)
	if st == stageLinkEligibility {
		r.eligible = a.eligible
	}

	metrics.SignInStages.WithLabelValues(st.String(), r.status.String()).Inc()
	o.logStage(a, st, r)

	s := transition(a.link, st, r)

	if s.logFaults {
		for _, fault := range auth.Flatten(err) {
			logger.Warn("google sign-in fault", map[string]any{
				"stage": st.String(),
				"kind":  auth.Classify(fault).String(),
				"error": fault.Error(),
			})
		}
	}

	if len(s.effects) == 0 {
		o.settle(ctx, a, s)
		return
	}

	o.queue.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return o.apply(ctx, s.effects)
	}, func(err error) {
		if err != nil {
			logger.Warn("google sign-in cleanup incomplete", map[string]any{
				"stage": st.String(),
				"error": err.Error(),
			})
		}
		o.settle(ctx, a, s)
	}, o.abandon(a, st))
}

// abandon ends an attempt whose queue stopped while st's call was running.
func (o *Orchestrator) abandon(a *Attempt, st stage) func(err error) {
	return func(err error) {
		fields := map[string]any{"stage": st.String()}
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.Warn("google sign-in abandoned", fields)
		a.finish()
	}
}

// settle reports the step's outcome and moves to its next stage.
func (o *Orchestrator) settle(ctx context.Context, a *Attempt, s step) {
	if s.report != nil && !a.reported {
		a.reported = true
		metrics.SignInOutcomes.WithLabelValues(s.report.State.String(), s.report.Error.String()).Inc()
		logger.Info("google sign-in outcome", map[string]any{"outcome": s.report.String()})
		o.sink.ReportOutcome(*s.report)
	}

	if s.next == stageDone {
		a.finish()
		return
	}
	o.run(ctx, a, s.next)
}

// apply runs effects in order and joins their errors.
func (o *Orchestrator) apply(ctx context.Context, effects []effect) error {
	var errs []error
	for _, e := range effects {
		var err error
		switch e {
		case effectSignOutProvider:
			err = o.provider.SignOut(ctx)
		case effectEndSession:
			err = o.core.EndSession(ctx)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) logStage(a *Attempt, st stage, r result) {
	fields := map[string]any{
		"stage":  st.String(),
		"status": r.status.String(),
	}

	if r.status == statusCompleted {
		switch st {
		case stageProviderSignIn:
			fields["display_name"] = a.identity.DisplayName
			fields["email_present"] = a.identity.Email != ""
		case stageLinkEligibility:
			fields["eligible"] = r.eligible
		case stageLinkCredential, stageExchangeCredential:
			fields["user_id"] = o.core.CurrentUserID()
		}
	}

	logger.Info("google sign-in stage", fields)
}
