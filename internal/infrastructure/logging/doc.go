// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Every entry written inside a scope boundary should carry the scope's
// correlation fields. Use For to get a logger bound to the ambient scope:
//
//	log := logger.For(ctx)
//	log.Info("charge accepted", zap.String("invoice", inv.ID))
//
// When no scope is bound, or the bound scope is not usable, the entry gets a
// scope_error field instead of silently dropping the correlation data.
package logging
