// Package dispatch turns one notification event into at most two delivery
// attempts, primary server first and secondary as fallback, and reduces
// their outcomes to one summary sentence.
//
// All dispatches are serialized behind a single process-wide lock: concurrent
// events are delivered one after another in lock acquisition order.
package dispatch
