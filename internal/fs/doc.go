// Package fs is the file system seam of the undo log and the pool file.
//
// LocalFS (fs.Default) wraps the os package. FaultyFS wraps another
// FileSystem and fails writes, syncs, truncates or closes of matching paths,
// which is how tests crash a transaction halfway through its log:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".undo", fs.Fault{FailAfterBytes: 64})
//	p, err := pool.Create(path, size, pool.WithFileSystem(ffs))
package fs
