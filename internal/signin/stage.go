package signin

import (
	"signin-service/internal/auth"
	"signin-service/internal/backend"
)

type stage int

const (
	stageProviderSignIn stage = iota
	stageLinkEligibility
	stageLinkCredential
	stageLinkTokenRefresh
	stageBackendLink
	stageExchangeCredential
	stageSessionTokenRefresh
	stageMintCustomToken
	stageSessionStart
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageProviderSignIn:
		return "provider_signin"
	case stageLinkEligibility:
		return "link_eligibility"
	case stageLinkCredential:
		return "link_credential"
	case stageLinkTokenRefresh:
		return "link_token_refresh"
	case stageBackendLink:
		return "backend_link"
	case stageExchangeCredential:
		return "exchange_credential"
	case stageSessionTokenRefresh:
		return "session_token_refresh"
	case stageMintCustomToken:
		return "mint_custom_token"
	case stageSessionStart:
		return "session_start"
	case stageDone:
		return "done"
	default:
		return "invalid"
	}
}

type status int

const (
	statusCompleted status = iota
	statusCancelled
	statusFaulted
)

func (s status) String() string {
	switch s {
	case statusCompleted:
		return "completed"
	case statusCancelled:
		return "cancelled"
	default:
		return "faulted"
	}
}

// result is what a stage's collaborator call produced.
type result struct {
	status status
	err    error

	// eligible is only meaningful for stageLinkEligibility.
	eligible bool
}

func resultOf(err error) result {
	switch {
	case err == nil:
		return result{status: statusCompleted}
	case auth.IsCancelled(err):
		return result{status: statusCancelled, err: err}
	default:
		return result{status: statusFaulted, err: err}
	}
}

type effect int

const (
	effectSignOutProvider effect = iota
	effectEndSession
)

func (e effect) String() string {
	if e == effectSignOutProvider {
		return "provider_signout"
	}
	return "end_session"
}

// step is the decision taken after a stage: side effects run in order,
// then the outcome (if any) is reported, then next runs.
type step struct {
	next      stage
	effects   []effect
	report    *auth.Outcome
	logFaults bool
}

func done(report *auth.Outcome, effects ...effect) step {
	return step{next: stageDone, effects: effects, report: report}
}

func reportOf(o auth.Outcome) *auth.Outcome {
	return &o
}

var (
	signOutProvider = []effect{effectSignOutProvider}
	signOutBoth     = []effect{effectSignOutProvider, effectEndSession}
	endSession      = []effect{effectEndSession}
)

// transition decides what follows stage st given its result r.
// It has no side effects; the orchestrator applies the returned step.
func transition(link bool, st stage, r result) step {
	unknown := reportOf(auth.Failed(auth.ErrorUnknown))

	switch st {
	case stageProviderSignIn:
		switch r.status {
		case statusCancelled:
			return done(unknown)
		case statusFaulted:
			s := done(unknown)
			s.logFaults = true
			return s
		}
		if link {
			return step{next: stageLinkEligibility}
		}
		return step{next: stageExchangeCredential}

	case stageLinkEligibility:
		switch {
		case r.status == statusCancelled:
			return done(nil, signOutProvider...)
		case r.status == statusFaulted:
			return done(unknown, endSession...)
		case !r.eligible:
			return done(reportOf(auth.Failed(auth.ErrorAccountAlreadyLinked)), signOutProvider...)
		}
		return step{next: stageLinkCredential}

	case stageLinkCredential:
		switch r.status {
		case statusCancelled:
			return done(nil, signOutProvider...)
		case statusFaulted:
			kind := backend.LinkErrorFor(r.err)
			s := done(reportOf(auth.Failed(kind)), signOutProvider...)
			s.logFaults = kind == auth.ErrorUnknown
			return s
		}
		return step{next: stageLinkTokenRefresh}

	case stageLinkTokenRefresh:
		switch r.status {
		case statusCancelled:
			return done(nil, signOutBoth...)
		case statusFaulted:
			return done(unknown, endSession...)
		}
		return step{next: stageBackendLink}

	case stageBackendLink:
		// Any completion of the backend link counts as success.
		s := done(reportOf(auth.OutcomeSuccess))
		s.logFaults = r.status == statusFaulted
		return s

	case stageExchangeCredential:
		switch r.status {
		case statusCancelled:
			return done(nil, signOutBoth...)
		case statusFaulted:
			return done(unknown, signOutBoth...)
		}
		return step{next: stageSessionTokenRefresh}

	case stageSessionTokenRefresh, stageMintCustomToken, stageSessionStart:
		// The fresh-session tail reports nothing, on success or failure.
		// Success surfaces through the backend's session-state listener.
		if r.status != statusCompleted {
			s := done(nil)
			s.logFaults = r.status == statusFaulted
			return s
		}
		switch st {
		case stageSessionTokenRefresh:
			return step{next: stageMintCustomToken}
		case stageMintCustomToken:
			return step{next: stageSessionStart}
		}
		return done(nil)
	}

	return done(nil)
}
