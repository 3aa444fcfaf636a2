/*
Package escalation implements the receiver's failure escalation machine.

# Overview

The level is a pure function of the consecutive receive-timeout count. Any
successful receive returns the machine to Normal and forgets prior
escalation. Terminated is absorbing: only a new receiver instance leaves it.

# States

	Normal --timeout--> Warning --(W)--> Recovery --(R)--> CriticalShutdown --(S)--> Terminated
	   ^                   |                |                    |
	   +-----received------+----------------+--------------------+

With the default thresholds W=3, R=5, S=10:

  - 1-2 timeouts: Warning, no corrective action
  - 3-4 timeouts: Recovery, clear the channel
  - 5-9 timeouts: CriticalShutdown, keep running
  - 10 timeouts: Terminated, the task exits

# Usage

	m := escalation.NewMachine(escalation.DefaultThresholds(), func(from, to escalation.State, e escalation.Event) {
		log.Printf("escalation %s -> %s on %s", from.Level, to.Level, e)
	})
	state := m.Fire(escalation.EventTimeout)
	if state.Level.Action() == escalation.ActionClearChannel {
		ch.Clear()
	}
*/
package escalation
