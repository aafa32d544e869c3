package record

import "strconv"

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// formatFloat uses the shortest representation that round-trips, so key
// rendering stays deterministic across platforms.
func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
