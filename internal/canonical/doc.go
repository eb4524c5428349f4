// Package canonical produces canonical JSON for content fingerprints.
//
// The encoding follows RFC 8785 for the subset of values the pipeline
// fingerprints: strings, integers, booleans, arrays and objects. Object keys
// are ordered by UTF-16 code units, strings are NFC normalized and HTML
// characters are not escaped. Floats and nulls are rejected so that every
// fingerprinted value has exactly one textual form.
package canonical
