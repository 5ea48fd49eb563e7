package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/mitchellh/mapstructure"
)

// EnvPrefix marks the environment variables read by Load. The rest of the name is the
// lower-cased key path joined by underscores, e.g. LOBBYD_LOG_LEVEL or
// LOBBYD_PLUGIN_TRANSPORT_TCP_ADDR. Keys match field tags case-insensitively.
const EnvPrefix = "LOBBYD_"

// EnvFileVar names the dotenv file to load. It is not itself a configuration key.
const EnvFileVar = EnvPrefix + "ENV_FILE"

// Load returns the defaults overlaid with envFile (when it exists) and then with the
// process environment. An empty envFile skips the file.
func Load(envFile string) (*Config, error) {
	return load(envFile, os.Environ())
}

func load(envFile string, environ []string) (*Config, error) {
	vars := make(map[string]string)
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("file", envFile).Msg("env file not found, using environment only")
		case err != nil:
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		default:
			for k, v := range fileVars {
				vars[k] = v
			}
		}
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	cfg := Default()
	if err := cfg.apply(vars); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply decodes the LOBBYD_* entries of vars onto c.
func (c *Config) apply(vars map[string]string) error {
	tree, err := envTree(vars)
	if err != nil {
		return err
	}

	if plugins, ok := tree["plugin"].(map[string]any); ok {
		mergeTree(c.Plugin, plugins)
		delete(tree, "plugin")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: c,
	})
	if err != nil {
		return fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(tree); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// envTree turns LOBBYD_A_B=v entries into {"a": {"b": "v"}}.
func envTree(vars map[string]string) (map[string]any, error) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		if strings.HasPrefix(k, EnvPrefix) && len(k) > len(EnvPrefix) && k != EnvFileVar {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	tree := make(map[string]any)
	for _, k := range keys {
		path := strings.Split(strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), "_")
		node := tree
		for i, seg := range path {
			if seg == "" {
				return nil, fmt.Errorf("malformed config variable %s", k)
			}
			if i == len(path)-1 {
				if _, taken := node[seg]; taken {
					return nil, fmt.Errorf("config variable %s conflicts with a nested key", k)
				}
				node[seg] = vars[k]
				break
			}
			next, ok := node[seg]
			if !ok {
				child := make(map[string]any)
				node[seg] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("config variable %s conflicts with %s", k, strings.Join(path[:i+1], "_"))
			}
			node = child
		}
	}
	return tree, nil
}

// mergeTree copies src into dst, descending into maps present on both sides. Keys of src
// are matched against dst case-insensitively.
func mergeTree(dst, src map[string]any) {
	for k, v := range src {
		key := k
		for existing := range dst {
			if strings.EqualFold(existing, k) {
				key = existing
				break
			}
		}
		sub, srcIsMap := v.(map[string]any)
		cur, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeTree(cur, sub)
			continue
		}
		dst[key] = v
	}
}
