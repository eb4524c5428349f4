// Package segment models Science Segments and resolves per-event analysis
// windows against them.
//
// A Science Segment is a half-open interval [Start, End) during which one
// instrument's data is usable. Lists of segments are kept coalesced: sorted,
// with no two segments overlapping or touching. Finder implementations load
// coalesced lists per instrument, and Resolver intersects them for a single
// event, applying per-instrument time slides, padding and the maximum PSD
// length.
package segment
