// Package channel provides the bounded FIFO shared between the generator and
// receiver tasks.
//
// Backpressure policy is drop-newest: TrySend never blocks and a value offered
// to a full channel is lost. Receive blocks up to a timeout and Clear empties
// the channel in one step, which the receiver uses as a recovery action.
//
// Example Usage:
//
//	ch, err := channel.New[int32](10)
//	if err != nil {
//		return err
//	}
//	ch.TrySend(1)
//	v, err := ch.Receive(ctx, 2*time.Second)
package channel
