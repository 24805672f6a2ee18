package auth

// LoginState is the coarse result of a sign-in attempt.
type LoginState int

const (
	StatePending LoginState = iota
	StateSuccess
	StateError
)

func (s LoginState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// LoginError qualifies an Error outcome.
type LoginError int

const (
	ErrorOk LoginError = iota
	ErrorUnknown
	ErrorAccountAlreadyLinked
	ErrorAccountNeedsRecentLogin
)

func (e LoginError) String() string {
	switch e {
	case ErrorOk:
		return "ok"
	case ErrorUnknown:
		return "unknown"
	case ErrorAccountAlreadyLinked:
		return "account_already_linked"
	case ErrorAccountNeedsRecentLogin:
		return "account_needs_recent_login"
	default:
		return "invalid"
	}
}

// Outcome is the terminal result of one sign-in attempt.
type Outcome struct {
	State LoginState
	Error LoginError
}

var (
	OutcomeSuccess = Outcome{State: StateSuccess, Error: ErrorOk}
	OutcomePending = Outcome{State: StatePending, Error: ErrorOk}
)

// Failed builds an Error outcome of the given kind.
func Failed(kind LoginError) Outcome {
	return Outcome{State: StateError, Error: kind}
}

func (o Outcome) String() string {
	return o.State.String() + "/" + o.Error.String()
}
