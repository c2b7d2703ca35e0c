// Package harness executes store scenarios and checks their outcomes.
//
// A scenario is a YAML file describing setup writes, a sequence of steps
// run against a fresh store, and assertions evaluated on the final state.
//
// # Scenario Format
//
//	name: patient_lifecycle
//	description: "Versions grow by one per write"
//	persist: true
//	setup:
//	  - op: update
//	    target: Patient/p1
//	    resource: { resourceType: Patient, id: p1 }
//	steps:
//	  - op: update
//	    target: Patient/p1
//	    resource: { resourceType: Patient, id: p1, gender: male }
//	    expect:
//	      version: 2
//	  - op: read
//	    target: Patient/p9
//	    expect:
//	      outcome: not-found
//	assertions:
//	  - type: current_version
//	    target: Patient/p1
//	    version: 2
//
// # Step Operations
//
//   - create: target is a resource type; the body's id is honored when present
//   - update: target is Type/id; if_match sets the expected version
//   - read, vread, delete: target is Type/id; vread takes version
//   - history: target is empty (system), a type, or Type/id
//   - search: target is a type; query is a URL query string
//   - everything, document: target is Type/id
//   - bundle: resource is a batch or transaction Bundle
//
// A step's checkpoint names the store digest taken after the step.
//
// # Assertion Types
//
//   - current_version: the live record of target is at version
//   - history_count: target has count versions, tombstones included
//   - not_found: target has no live version
//   - resource: the live body of target contains expect as a subset
//   - digest_equal: every named checkpoint holds the same digest
//   - replay_matches: replaying the persisted ledger yields the final digest
//
// # Deterministic Testing
//
// Every run uses a stepping clock from 2024-01-01T00:00:00Z and sequential
// ids (id-1, id-2, ...), so traces are identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
