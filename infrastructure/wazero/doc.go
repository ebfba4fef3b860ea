// Package wazero bridges the host function registry onto the wazero
// WebAssembly runtime. It handles:
//
//   - Converting between packed i64 pointer+length format and byte slices
//   - Reading request data from guest memory
//   - Allocating and writing response data to guest memory via the guest's
//     allocate export
//   - Registering the tagged byte handlers and the direct scalar exports
//     (now_ms, node_id, hlc_now, is_leader, leader_id, random_bytes) on
//     the host module
//
// The host module is named "larch_host"; guests import every host
// function from it.
package wazero
