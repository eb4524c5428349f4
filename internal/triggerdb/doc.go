// Package triggerdb reads candidate events from a prior coincidence
// analysis database.
//
// The database holds single-instrument triggers (sngl_inspiral), their
// coincidences (coinc_event, coinc_event_map, coinc_inspiral) and the time
// slides applied to them (time_slide). Zero-lag coincidences carry the
// reserved slide id ZeroLagSlide; the rest are background from shifted
// data, whose times are slid back onto the analysed segment ring.
//
// SQLite files are opened read-only. A postgres:// DSN selects the
// PostgreSQL driver for copies held on a server.
package triggerdb
