package certwatcher

import "github.com/bft-labs/docship/pkg/docship"

// WithCertWatcher returns a docship Option that enables certificate file
// watching.
//
// Usage:
//
//	d, err := docship.New(cfg,
//	    certwatcher.WithCertWatcher(certwatcher.Config{
//	        OnChange: func(path string) { restart <- struct{}{} },
//	    }),
//	)
func WithCertWatcher(cfg Config) docship.Option {
	return docship.WithPlugin(New(cfg))
}
