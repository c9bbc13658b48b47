// Package dispatch schedules outbound WhatsApp messages.
//
// Once a minute a Trigger calls Scheduler.RunTick. The tick takes a
// fleet-wide lock named after the local minute (WindowKey), loads the
// definitions due at that date and time, and fans each one out with the
// Planner into staggered SendOperations. Before every contact the owner's
// remaining daily quota is read again through the QuotaTracker, so several
// definitions of one owner in the same tick never exceed the limit together.
// Operations go to the task queue through a Submitter with their delay as
// the scheduled countdown; one SendRecord is written per contact that had at
// least one successful submission. Delivery happens later in the sender.
//
// Contention on the lock is the normal outcome for every caller but one per
// minute and is reported as StateSkipped. The lock is released on every
// other path, including panics.
//
//	tracker, _ := dispatch.NewQuotaTracker(store, cfg.DefaultDailyLimit)
//	submitter, _ := dispatch.NewQueueSubmitter(enqueuer, cfg.Queue, cfg.MaxRetries)
//	scheduler, _ := dispatch.NewScheduler(store, tracker, store, locker, submitter,
//	    dispatch.WithConfig(cfg), dispatch.WithLogger(log))
//	trigger := dispatch.NewTrigger(scheduler, cfg.CronSpec, cfg.Location(), log)
//	g.Go(trigger.Run(ctx))
package dispatch
