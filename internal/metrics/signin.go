package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Sign-in metrics live here so the orchestrator and the HTTP layer can share
// them without importing each other.
var (
	SignInOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signin_outcomes_total",
		Help: "Sign-in outcomes reported to callers",
	}, []string{"state", "error"})

	SignInStages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signin_stage_results_total",
		Help: "Results of each sign-in stage",
	}, []string{"stage", "status"})

	SignInAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signin_attempts_total",
		Help: "Sign-in attempts started, by intent",
	}, []string{"intent"})
)

// Register registers the sign-in metrics on reg (or the default registerer if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{SignInOutcomes, SignInStages, SignInAttempts} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
