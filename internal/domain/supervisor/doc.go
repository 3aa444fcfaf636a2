// Package supervisor implements the health supervisor task.
//
// The supervisor never looks inside the tasks it watches. Every Period it
// reads the shared health signal and applies a staleness test to each
// heartbeat:
//
//  1. log a status snapshot with heap usage
//  2. recreate the receiver if it has no handle or a stale heartbeat, and
//     charge the restart budget; an exhausted budget restarts the device
//     after a grace delay
//  3. recreate the generator if its heartbeat is stale, with no budget
//  4. raise a critical alert if the minimum free heap fell below the floor
//
// Task handles belong to the supervisor alone. Creating and terminating
// tasks goes through the Scheduler.
package supervisor
