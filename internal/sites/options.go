package sites

import "time"

type adapterOptions struct {
	now func() time.Time
}

// AdapterOption configures the built-in adapters.
type AdapterOption func(*adapterOptions)

// WithReferenceTime sets the clock that relative dates such as "昨天" or
// "3小时前" resolve against. Parse output only depends on its inputs and
// this clock. The default is time.Now.
func WithReferenceTime(now func() time.Time) AdapterOption {
	return func(o *adapterOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func newAdapterOptions(opts []AdapterOption) adapterOptions {
	o := adapterOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
