// Package broadcast provides typed in-process publish/subscribe.
//
//	b := broadcast.NewMemoryBroadcaster[Change](16)
//	sub := b.Subscribe(ctx)
//	go func() {
//	    for msg := range sub.Receive() {
//	        handle(msg.Data)
//	    }
//	}()
//	_ = b.Broadcast(ctx, broadcast.Message[Change]{Data: change})
//
// Delivery is best effort: a subscriber whose buffer is full misses the
// message and Dropped is incremented. Subscriptions end when their context is
// cancelled, when Close is called on them, or when the broadcaster closes.
package broadcast
