package timeframe

// Registry maps bar identities of one instrument back to their timeframe.
type Registry struct {
	instrument string
	barTypes   map[Timeframe]string
	byBarType  map[string]Timeframe
}

func NewRegistry(instrument string) *Registry {
	r := &Registry{
		instrument: instrument,
		barTypes:   make(map[Timeframe]string, len(ordered)),
		byBarType:  make(map[string]Timeframe, len(ordered)),
	}
	for _, tf := range ordered {
		bt := tf.BarType(instrument)
		r.barTypes[tf] = bt
		r.byBarType[bt] = tf
	}
	return r
}

func (r *Registry) Instrument() string {
	return r.instrument
}

// BarType returns the native bar identity for tf.
func (r *Registry) BarType(tf Timeframe) string {
	return r.barTypes[tf]
}

// Lookup resolves a bar identity to its timeframe.
func (r *Registry) Lookup(barType string) (Timeframe, bool) {
	tf, ok := r.byBarType[barType]
	return tf, ok
}

// Subscriptions lists what a feed must provide: the base timeframe natively,
// everything coarser as a composite of the base.
func (r *Registry) Subscriptions() []string {
	out := make([]string, 0, len(ordered))
	for _, tf := range ordered {
		if tf == Base {
			out = append(out, tf.BarType(r.instrument))
			continue
		}
		out = append(out, tf.CompositeBarType(r.instrument))
	}
	return out
}
