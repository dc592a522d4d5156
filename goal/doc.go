// Package goal defines the domain model for trackable units of intent: the
// Goal record with its append-only logs, the tiered autonomy capability
// table, the lifecycle status machine and the derived priority queue entry.
//
// The package holds pure data and validation only; persistence lives in the
// store package and behavior in scheduler, lifecycle and coordinator.
package goal
