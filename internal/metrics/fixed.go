package metrics

// FixedSource is a MetricsSource stub returning constant samples, for tests
// that need top()'s output to be assertable.
type FixedSource struct {
	ReadTime, ReadCount   int64
	WriteTime, WriteCount int64
}

func (f FixedSource) ReadLockSample() (int64, int64) {
	return f.ReadTime, f.ReadCount
}

func (f FixedSource) WriteLockSample() (int64, int64) {
	return f.WriteTime, f.WriteCount
}
