// Package testutil provides testing utilities for pmem.
//
// This package is intended for use in tests and benchmarks only.
//
// # Recording Memory
//
// Memory is an aligned in-memory address space that implements the
// allocator interface of package pmem and logs every Record call together
// with the pre-image it captured:
//
//	m := testutil.NewMemory(1 << 16)
//	m.Begin()
//	arr, _ := pmem.Make[int64](m, 10)
//	_ = arr.Set(3, 42)
//	m.Calls() // [{Off: 24, N: 8}]
//	m.Abort() // element 3 is zero again
//
// # Random Numbers
//
//	rng := testutil.NewRNG(seed)
//	idx := rng.Perm(n)
package testutil
