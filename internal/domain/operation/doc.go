// Package operation tracks named units of work inside a scoped context and
// derives child contexts for calls those units make to other nodes.
//
// A Tracker is bound to one initialized scope.Context. It has exactly one
// terminal transition (Complete or Fail); later terminal calls are no-ops,
// and Close completes a tracker that was abandoned while running.
package operation
