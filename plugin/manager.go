package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/mitchellh/mapstructure"
)

const (
	// DefaultInsName is the tag for the default plugin instance.
	DefaultInsName = "default"
)

var (
	ErrPluginNotFound      = errors.New("plugin not found")
	ErrDuplicatePlugin     = errors.New("duplicate plugin")
	ErrInvalidConfigFormat = errors.New("invalid config format")
	ErrConfigDecode        = errors.New("config decode error")
	ErrFactorySetup        = errors.New("factory setup error")
)

// validator is implemented by plugin configs that check themselves after decoding.
type validator interface {
	Validate() error
}

type instance struct {
	key     string
	plugin  Plugin
	factory Factory
}

// Manager owns plugin factories and the instances built from configuration.
type Manager struct {
	factories map[Type]map[string]Factory
	plugins   map[Type][]instance
	lock      sync.RWMutex
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		factories: make(map[Type]map[string]Factory),
		plugins:   make(map[Type][]instance),
	}
}

// RegisterFactory registers a plugin factory.
func (m *Manager) RegisterFactory(f Factory) {
	m.lock.Lock()
	defer m.lock.Unlock()

	factories, ok := m.factories[f.Type()]
	if !ok {
		factories = make(map[string]Factory)
		m.factories[f.Type()] = factories
	}
	factories[f.Name()] = f
}

// SetupPlugins builds every plugin named in pluginConf, laid out as
// type -> implementation name -> config map. Types without registered factories are
// skipped; implementations are set up in name order. An instance is keyed by its "tag"
// config value when present, otherwise by the implementation name.
func (m *Manager) SetupPlugins(pluginConf map[string]any) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, typeName := range sortedKeys(pluginConf) {
		pluginType := Type(typeName)
		factories, ok := m.factories[pluginType]
		if !ok {
			log.Debug().Str("type", typeName).Msg("no plugin factory for type")
			continue
		}

		pluginsMap, ok := pluginConf[typeName].(map[string]any)
		if !ok {
			return fmt.Errorf("%w for plugin type '%s'", ErrInvalidConfigFormat, pluginType)
		}

		for _, name := range sortedKeys(pluginsMap) {
			factory, ok := factories[name]
			if !ok {
				return fmt.Errorf("%w: plugin factory not found for type '%s' and name '%s'", ErrPluginNotFound, pluginType, name)
			}

			configMap, ok := pluginsMap[name].(map[string]any)
			if !ok {
				return fmt.Errorf("%w for plugin '%s':'%s'", ErrInvalidConfigFormat, pluginType, name)
			}

			ins, err := m.setupOne(pluginType, name, factory, configMap)
			if err != nil {
				return err
			}

			key := name
			if tag, ok := configMap["tag"].(string); ok && tag != "" {
				key = tag
			}
			for _, existing := range m.plugins[pluginType] {
				if existing.key == key {
					factory.Destroy(ins)
					return fmt.Errorf("%w: duplicate plugin tag/name '%s' for type '%s'", ErrDuplicatePlugin, key, pluginType)
				}
			}
			m.plugins[pluginType] = append(m.plugins[pluginType], instance{key: key, plugin: ins, factory: factory})
			log.Info().Str("type", typeName).Str("name", name).Str("key", key).Msg("plugin set up")
		}
	}
	return nil
}

func (m *Manager) setupOne(pluginType Type, name string, factory Factory, configMap map[string]any) (Plugin, error) {
	targetConfig := factory.ConfigType()
	if targetConfig == nil {
		return nil, fmt.Errorf("%w: plugin factory '%s':'%s' did not provide a configuration type", ErrInvalidConfigFormat, pluginType, name)
	}

	// Values loaded from the environment arrive as strings, hence weak typing.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           targetConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create config decoder for plugin '%s':'%s': %v", ErrConfigDecode, pluginType, name, err)
	}
	if err := decoder.Decode(configMap); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config for plugin '%s':'%s': %v", ErrConfigDecode, pluginType, name, err)
	}
	if v, ok := targetConfig.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: invalid config for plugin '%s':'%s': %v", ErrConfigDecode, pluginType, name, err)
		}
	}

	ins, err := factory.Setup(targetConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to setup plugin '%s':'%s': %v", ErrFactorySetup, pluginType, name, err)
	}
	return ins, nil
}

// GetPlugin returns the instance registered under a name or tag.
func (m *Manager) GetPlugin(typ Type, name string) (Plugin, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	plugins, ok := m.plugins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: no plugins found for type '%s'", ErrPluginNotFound, typ)
	}
	for _, ins := range plugins {
		if ins.key == name {
			return ins.plugin, nil
		}
	}
	return nil, fmt.Errorf("%w: plugin '%s' not found for type '%s'", ErrPluginNotFound, name, typ)
}

// GetDefaultPlugin returns the instance tagged "default".
func (m *Manager) GetDefaultPlugin(typ Type) (Plugin, error) {
	return m.GetPlugin(typ, DefaultInsName)
}

// GetPlugins returns every instance of a type in setup order.
func (m *Manager) GetPlugins(typ Type) []Plugin {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]Plugin, 0, len(m.plugins[typ]))
	for _, ins := range m.plugins[typ] {
		out = append(out, ins.plugin)
	}
	return out
}

// DestroyPlugins destroys every instance in reverse setup order and forgets them.
func (m *Manager) DestroyPlugins() {
	m.lock.Lock()
	defer m.lock.Unlock()

	for typ, list := range m.plugins {
		for i := len(list) - 1; i >= 0; i-- {
			list[i].factory.Destroy(list[i].plugin)
		}
		delete(m.plugins, typ)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
