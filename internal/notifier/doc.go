// Package notifier delivers short operator alerts about failed executions.
//
// It subscribes to task.failed events on the event bus and pushes a message
// through every configured Sender (Telegram, email). Delivery is
// asynchronous: a bounded queue feeds one worker that is rate limited and
// retries with backoff. When the queue is full the message is dropped; the
// engine never waits on notifications.
//
// Identical messages inside the dedup window are suppressed so a task that
// fails on every tick does not flood the channel.
package notifier
