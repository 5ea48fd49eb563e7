// Package plugin builds pluggable components (transports, metric reporters) from the
// "plugin" section of the configuration.
package plugin

// Type is the category of a plugin. The configuration groups plugins by type.
type Type string

const (
	// Metrics plugins export the metrics package records.
	Metrics Type = "metrics"
	// Transport plugins accept client connections.
	Transport Type = "transport"
)

// Factory creates plugin instances of one implementation.
type Factory interface {
	// Type returns the plugin type.
	Type() Type
	// Name returns the name of the implementation, the key under the type in the config.
	Name() string
	// ConfigType returns a pointer to an empty config struct populated with mapstructure.
	ConfigType() any
	// Setup builds an instance from the populated config.
	Setup(any) (Plugin, error)
	// Destroy releases an instance built by Setup.
	Destroy(Plugin)
}

// Plugin is a running plugin instance.
type Plugin interface {
	FactoryName() string
}
