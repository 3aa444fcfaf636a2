/*
Package resilience provides the restart budget used to escalate repeated task failures.

# Overview

A Budget counts consecutive restarts of one supervised task. When the count
reaches MaxRestarts the budget is exhausted and RecordRestart returns
ErrBudgetExhausted, which the supervisor answers with a device restart.

# Usage

	budget := resilience.New("receiver", resilience.Settings{
		MaxRestarts: 5,
		OnExhausted: func(name string, counts resilience.Counts) {
			logger.Error("restart budget exhausted", zap.String("task", name))
		},
	})

	if err := budget.RecordRestart(); errors.Is(err, resilience.ErrBudgetExhausted) {
		restarter.Restart("receiver restart budget exhausted")
	}

# States

	Armed --[MaxRestarts consecutive restarts]-> Exhausted --[Reset]-> Armed

With RecoveryCycles set, that many consecutive RecordHealthy calls zero the
consecutive count while still Armed. The default of zero never forgives.
*/
package resilience
