package statusapi

// Func adapts a plain func() Status into a StatusSource, so callers
// (cmd/falldetectd) can bridge the collector's own Status type without
// statusapi importing the collector package.
type Func func() Status

func (f Func) Status() Status { return f() }
