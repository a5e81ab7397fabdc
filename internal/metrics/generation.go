package metrics

import "time"

// Generation summarizes one finished generation request
type Generation struct {
	Variant  string
	Steps    int
	Emitted  int
	Dropped  int
	Duration time.Duration
	Success  bool
}
