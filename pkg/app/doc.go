// Package app defines the application model: the lifecycle status machine,
// the callbacks an application exposes, and the Record the registry keeps
// for each registered application or mounted parcel.
//
// Records are shared between the scheduler, the transition functions and
// readers such as the status API. All mutable fields sit behind the record's
// mutex. A transition claims a record with Begin, which atomically validates
// the edge and moves the record into a transitional status. No other
// transition can act on it until it settles.
package app
