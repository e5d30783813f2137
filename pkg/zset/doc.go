// Package zset implements the data model of incremental computation: updates that carry a
// signed multiplicity at a logical time, and Z-sets (multisets with integer multiplicities) that
// sum them up.
//
// A record present with multiplicity zero is logically absent. Positive multiplicities are
// insertions, negative ones retractions. All multiplicity arithmetic is checked: an overflow is
// reported as ErrOverflow instead of silently wrapping around.
//
// Example usage:
//
//	zs := zset.New[string]()
//	_ = zs.AddMutate("apple", 1)  // insert
//	_ = zs.AddMutate("apple", -1) // retract, zs is now empty
package zset
