package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/photolala/photolala-access/internal/app"
)

// envPrefix marks environment variables that carry config. Double underscores
// separate sections:
//
//	PHOTOLALA_OAUTH__CLIENT_ID     -> oauth.client_id
//	PHOTOLALA_GRANTS__STORAGE      -> grants.storage
//	PHOTOLALA_LIBRARY__ROOTS=/a,/b -> library.roots = ["/a", "/b"]
//	PHOTOLALA_REFRESH__INTERVAL    -> refresh.interval
const envPrefix = "PHOTOLALA_"

// listKeys are config keys whose env values are comma-separated lists.
var listKeys = map[string]bool{
	"library.roots": true,
}

// configFlags are top-level flags that map onto config keys without a "--" separator.
var configFlags = map[string]bool{
	"log-level":   true,
	"log-format":  true,
	"environment": true,
}

// loadConfig layers the TOML file at configPath, PHOTOLALA_ environment
// variables and explicitly set CLI flags, later sources winning, then fills
// defaults and validates. environFunc stands in for os.Environ in tests.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading %s environment: %w", envPrefix, err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// envKey turns PHOTOLALA_GRANTS__SQLITE_PATH into grants.sqlite_path.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, envPrefix), "__", "."))
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}

	return key, value
}

// flagValues collects the config-shaped flags the user actually set, parents
// included: --oauth--client-id becomes oauth.client_id and --log-level becomes
// log_level. Unset flags are left out so they cannot mask file or env values,
// and command options such as --account never reach the config.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	for _, name := range cmd.FlagNames() {
		if !isConfigFlag(name) || !cmd.IsSet(name) {
			continue
		}

		value := cmd.Value(name)
		if value == nil {
			continue
		}

		key := strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
		values[key] = value
	}

	return values
}

func isConfigFlag(name string) bool {
	return configFlags[name] || strings.Contains(name, "--")
}
