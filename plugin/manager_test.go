package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfig struct {
	Addr    string `mapstructure:"addr"`
	Workers int    `mapstructure:"workers"`
	Tag     string `mapstructure:"tag"`
}

func (c *mockConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr required")
	}
	return nil
}

type mockFactory struct {
	typ       Type
	name      string
	setupErr  error
	setups    []*mockConfig
	destroyed []string
}

func (m *mockFactory) Type() Type      { return m.typ }
func (m *mockFactory) Name() string    { return m.name }
func (m *mockFactory) ConfigType() any { return &mockConfig{} }
func (m *mockFactory) Setup(cfg any) (Plugin, error) {
	if m.setupErr != nil {
		return nil, m.setupErr
	}
	c := cfg.(*mockConfig)
	m.setups = append(m.setups, c)
	return &mockPlugin{name: m.name, addr: c.Addr}, nil
}
func (m *mockFactory) Destroy(p Plugin) {
	m.destroyed = append(m.destroyed, p.(*mockPlugin).addr)
}

type mockPlugin struct {
	name string
	addr string
}

func (p *mockPlugin) FactoryName() string { return p.name }

func TestSetupAndGetPlugins(t *testing.T) {
	tcp := &mockFactory{typ: Transport, name: "tcp"}
	ws := &mockFactory{typ: Transport, name: "ws"}
	m := NewManager()
	m.RegisterFactory(tcp)
	m.RegisterFactory(ws)

	err := m.SetupPlugins(map[string]any{
		"transport": map[string]any{
			"tcp": map[string]any{"addr": ":5555", "workers": "4", "tag": DefaultInsName},
			"ws":  map[string]any{"addr": ":8080"},
		},
		"unknown": map[string]any{"x": map[string]any{}},
	})
	require.NoError(t, err)

	require.Len(t, tcp.setups, 1)
	assert.Equal(t, 4, tcp.setups[0].Workers, "string values are weakly decoded")

	def, err := m.GetDefaultPlugin(Transport)
	require.NoError(t, err)
	assert.Equal(t, "tcp", def.FactoryName())

	byName, err := m.GetPlugin(Transport, "ws")
	require.NoError(t, err)
	assert.Equal(t, "ws", byName.FactoryName())

	all := m.GetPlugins(Transport)
	require.Len(t, all, 2)
	assert.Equal(t, "tcp", all[0].FactoryName())

	_, err = m.GetPlugin(Metrics, "prometheus")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	m.DestroyPlugins()
	assert.Equal(t, []string{":5555"}, tcp.destroyed)
	assert.Equal(t, []string{":8080"}, ws.destroyed)
	assert.Empty(t, m.GetPlugins(Transport))
}

func TestSetupPluginsErrors(t *testing.T) {
	cases := []struct {
		name string
		conf map[string]any
		fac  *mockFactory
		want error
	}{
		{
			name: "type section not a map",
			conf: map[string]any{"transport": "tcp"},
			fac:  &mockFactory{typ: Transport, name: "tcp"},
			want: ErrInvalidConfigFormat,
		},
		{
			name: "unknown implementation",
			conf: map[string]any{"transport": map[string]any{"quic": map[string]any{}}},
			fac:  &mockFactory{typ: Transport, name: "tcp"},
			want: ErrPluginNotFound,
		},
		{
			name: "config not a map",
			conf: map[string]any{"transport": map[string]any{"tcp": 1}},
			fac:  &mockFactory{typ: Transport, name: "tcp"},
			want: ErrInvalidConfigFormat,
		},
		{
			name: "validation fails",
			conf: map[string]any{"transport": map[string]any{"tcp": map[string]any{}}},
			fac:  &mockFactory{typ: Transport, name: "tcp"},
			want: ErrConfigDecode,
		},
		{
			name: "setup fails",
			conf: map[string]any{"transport": map[string]any{"tcp": map[string]any{"addr": ":1"}}},
			fac:  &mockFactory{typ: Transport, name: "tcp", setupErr: errors.New("boom")},
			want: ErrFactorySetup,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager()
			m.RegisterFactory(tc.fac)
			err := m.SetupPlugins(tc.conf)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDuplicateTag(t *testing.T) {
	tcp := &mockFactory{typ: Transport, name: "tcp"}
	kcp := &mockFactory{typ: Transport, name: "kcp"}
	m := NewManager()
	m.RegisterFactory(tcp)
	m.RegisterFactory(kcp)

	err := m.SetupPlugins(map[string]any{
		"transport": map[string]any{
			"kcp": map[string]any{"addr": ":1", "tag": "edge"},
			"tcp": map[string]any{"addr": ":2", "tag": "edge"},
		},
	})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
	assert.Equal(t, []string{":2"}, tcp.destroyed, "the rejected instance is torn down")
}
