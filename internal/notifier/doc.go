// Package notifier fans door status changes out to subscribers.
//
// The Dispatcher is called by the monitor on every observed change. The
// first call after start is swallowed (unless NotifyOnStartup is set) so a
// restart does not re-announce the state every subscriber already knows.
// Delivery is sequential, rate limited and best-effort: a failed send is
// logged and the fan-out moves on.
package notifier
