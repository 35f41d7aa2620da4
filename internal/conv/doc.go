// Package conv provides checked integer conversions for values read from or
// written to disk: undo record lengths and offsets.
package conv
