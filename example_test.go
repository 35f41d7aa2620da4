package pmem_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/pmem"
	"github.com/hupe1980/pmem/pool"
	"github.com/hupe1980/pmem/testutil"
)

// Example_rangeStride shows how a strided range view cuts the number of
// snapshots taken while every element is written.
func Example_rangeStride() {
	m := testutil.NewMemory(1 << 12)
	m.Begin()
	arr, err := pmem.Make(m, 6, 6, 5, 4, 3, 2, 1)
	if err != nil {
		log.Fatal(err)
	}
	m.Commit()
	m.ResetCalls()

	m.Begin()
	v, _ := arr.RangeStride(0, 6, 2)
	for it := v.Begin(); !it.Equal(v.End()); it.Next() {
		p, err := it.Ref()
		if err != nil {
			log.Fatal(err)
		}
		*p++
	}
	m.Commit()

	fmt.Println(arr.Values())
	fmt.Println(len(m.Calls()), "snapshots")
	// Output:
	// [7 6 5 4 3 2]
	// 3 snapshots
}

// Example_pool demonstrates arrays stored in a file-backed pool.
func Example_pool() {
	dir, err := os.MkdirTemp("", "pmem-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	p, err := pool.Create(filepath.Join(dir, "example.pool"), 1<<16)
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	var arr *pmem.Array[float64]
	err = p.Update(func(tx *pool.Tx) error {
		arr, err = pmem.Make(p, 3, 1.0, 2.0, 3.0)
		if err != nil {
			return err
		}
		return tx.SetRoot(pool.Ptr(arr.Offset()), arr.Len())
	})
	if err != nil {
		log.Fatal(err)
	}

	// Changes are undone when the transaction aborts.
	tx, _ := p.Begin()
	_ = arr.Fill(0)
	_ = tx.Abort()

	var sum float64
	for it := arr.CBegin(); it.Valid(); it.Next() {
		sum += it.Get()
	}
	fmt.Println(sum)
	// Output: 6
}
