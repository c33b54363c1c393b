// Package ir provides the work-item types that flow from modules to the
// graph store.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - A Transaction describes exactly one intended write (node, link, or raw statement)
//   - A Batch preserves the order its module produced Transactions in
//   - Entity data is serialized with MarshalCanonical so identical records
//     always produce identical bytes
//   - All JSON tags use snake_case
package ir
