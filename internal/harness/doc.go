// Package harness runs YAML scenarios against a real controller and records
// what it publishes.
//
// # Scenario Format
//
//	name: record_ramp
//	description: "Records a ramp twice and reuses the capture"
//	setup:
//	  - external: kick
//	flow:
//	  - send: set_sample_data
//	    handle: 1
//	    sample_rate: 8000
//	    channels: [[0.5, -0.5]]
//	  - send: record
//	    record:
//	      project_id: demo
//	      seconds: 0.001
//	      program: "push 0.25\ncapture 1 0"
//	      scope_id: 1
//	      dependencies: [{slot: 1}]
//	      loop: "load 0\nout"
//	      sample_rate: 8000
//	    expect:
//	      result: { length: 8 }
//	assertions:
//	  - type: publish_count
//	    handle: 2
//	    count: 1
//
// Programs are written in reference VM assembly and assembled before they
// are sent. Setup entries register handles in order, so the first one is
// handle 1.
//
// # Trace
//
// Every step adds a request event, the publishes it caused, and a reply
// event, each stamped by a deterministic clock. Audio is identified by a
// content digest rather than its samples, so traces are small enough to be
// golden files:
//
//	go test ./internal/harness -update
//
// # Assertion Types
//
//   - publish_count: number of publishes, optionally for one handle and kind
//   - publish_order: exact sequence of publish kinds for one handle
//   - final_sample: fields of a handle as the realtime side sees it
//   - required: handles still waiting for data on the control side
package harness
