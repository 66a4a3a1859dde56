// Package journal records what a Runtime did: one row per run and one row
// per dispatched Task, in a SQLite database.
//
// The journal is a debugging aid. It never feeds back into execution:
// a failed write is logged and the run continues.
//
// Typical use:
//
//	j, err := journal.Open("alan.db")
//	...
//	rec := journal.NewRecorder(j, logger)
//	rt, err := runtime.New(runtime.WithObserver(rec))
//	j.BeginRun(ctx, rt.ID(), "script.js", time.Now())
//	err = rt.Run(ctx)
//	j.EndRun(ctx, rt.ID(), time.Now(), journal.OutcomeOf(err))
package journal
