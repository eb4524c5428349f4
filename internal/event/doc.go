// Package event models analysis events and the file-based sources they
// are read from.
//
// Exactly one Source is active per run. Loader applies the optional index
// selection and the inclusive GPS range filter on top of it and checks that
// event ids are unique.
package event
