/*
Package health holds the liveness information shared by the generator,
receiver and supervisor tasks.

# Overview

A Signal is a set of status bits plus one heartbeat timestamp per monitored
task. Tasks write only the bits that describe themselves; the supervisor reads
them and judges liveness with IsStale.

# Flags

  - GeneratorOk: the generator has delivered at least one value
  - ReceiverOk, ReceiverWarning, ReceiverRecovery, ReceiverShutdown:
    receiver states, at most one asserted at a time

# Staleness

	if health.IsStale(sig.ReceiverHeartbeat(), now, period) {
		// recreate the receiver
	}
*/
package health
