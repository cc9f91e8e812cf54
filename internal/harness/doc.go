// Package harness runs YAML sync scenarios against the real engine and
// checks the resulting trace and database state.
//
// A scenario records local writes the way the POS does (sessions, orders,
// payments), scripts the remote system through remotetest.Fake (injected
// failures, offline periods, catalog rows), and then drives passes and
// operator actions step by step:
//
//	name: session_before_order
//	description: An order queued before its session still syncs second
//	setup:
//	  - action: create_order
//	    args: {id: LOCAL-O1, session_id: LOCAL-S1}
//	  - action: advance
//	    args: {by: 1s}
//	  - action: create_session
//	    args: {id: LOCAL-S1}
//	flow:
//	  - invoke: sync
//	    args: {}
//	    expect:
//	      pass: {processed: 2, succeeded: 2}
//	assertions:
//	  - type: trace_order
//	    actions: [InsertSession, InsertOrder]
//
// The trace lists every remote call with its outcome, a summary after
// each pass and a report per refreshed cache. Time only moves on advance
// steps and generated ids are sequential, so a trace is identical across
// runs and is compared against testdata/golden with goldie.
package harness
