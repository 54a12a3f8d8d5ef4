// Package core provides the batch transform pipeline for phone-number
// columns in CSV files.
//
// This package holds all domain logic independent of any transport. The web
// console and the csvcrypt CLI both drive it through [Service].
//
// # Architecture
//
//   - Engine: validates a run and transforms the target column of every
//     record, recording per-row success or failure.
//   - Service: the entry point. Parses uploads, bounds concurrent runs,
//     keeps results for download and records history.
//   - HistoryStore: run summaries in Postgres ([PostgresHistory]) or in
//     memory ([MemoryHistory]).
//
// # Runs
//
// A run moves through the phases
//
//	idle -> parsing -> validating -> processing -> completed | failed | cancelled
//
// Parse errors, a missing target column, an unknown mode and short key
// material fail the run before any row is processed. After that, a row that
// cannot be transformed is marked with status "error" and an error message,
// and the run continues:
//
//	svc := core.NewService(core.ServiceConfig{}, nil)
//	run, err := svc.Process(ctx, core.ProcessRequest{
//	    FileName: "users.csv",
//	    Column:   "phone",
//	    Mode:     core.ModeEncrypt,
//	    Params:   crypt.DefaultParams(),
//	    Body:     f,
//	})
//	// run.Result.Stats.Success + run.Result.Stats.Error == run.Result.Stats.Total
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// category has a code for support reference (FILE, PARSE, COL, KEY, RUN,
// RATE, DB, and ERR000 as the fallback).
package core
