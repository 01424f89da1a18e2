// Package controller drives the run lifecycle of an embedded interpreter.
//
// A [Controller] owns the session's run state and its output sink. It moves
// through Uninitialized, Loading, Ready, Running and Faulted:
//
//	Uninitialized --Start--> Loading --ok--> Ready <--Run--> Running
//	                                 \--err--> Faulted
//
// Only one run is in flight at a time. A Run requested while another is in
// progress, or before the runtime is ready, fails immediately with
// [ErrNotReady]; it is never queued. Staging and execution failures are
// captured in the run's [Report] and as an exception record in the output,
// and the controller always returns to Ready afterwards.
package controller
