package config

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed profiles/*.json
var builtinFS embed.FS

// BuiltinNames lists the embedded exercise profiles in name order.
func BuiltinNames() []string {
	entries, err := fs.ReadDir(builtinFS, "profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// BuiltinProfile returns a freshly decoded copy of an embedded profile.
func BuiltinProfile(name string) (*ProfileConfig, error) {
	data, err := builtinFS.ReadFile(path.Join("profiles", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("unknown built-in profile %q (have %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	cfg, err := ParseProfileJSON(data)
	if err != nil {
		return nil, fmt.Errorf("built-in profile %q: %w", name, err)
	}
	return cfg, nil
}

// MustBuiltinProfile is BuiltinProfile for tests and static setup.
// Panics if the profile does not exist.
func MustBuiltinProfile(name string) *ProfileConfig {
	cfg, err := BuiltinProfile(name)
	if err != nil {
		panic(err)
	}
	return cfg
}
