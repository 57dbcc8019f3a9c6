package docship

import "context"

// Plugin extends a Docship instance. Plugins are initialized in
// registration order by Start and shut down in reverse order by Stop.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// PluginConfig is the view of the instance configuration given to plugins.
type PluginConfig struct {
	Endpoints          []string
	SecurityProtocol   string
	KeystoreLocation   string
	TruststoreLocation string
	Logger             Logger
}
