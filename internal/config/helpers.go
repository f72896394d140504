package config

import (
	"dataengine/pkg/datasource"
)

// DefaultSourcesPath is the sources config location relative to the project
// root.
const DefaultSourcesPath = "etc/sources.yaml"

// MustLoadSources loads etc/sources.yaml from the project root and panics on
// error. It isolates the source definitions so tests and tools that only
// need adapters do not have to carry the full application config.
func MustLoadSources() *datasource.Config {
	cfg, err := LoadSources()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadSources loads the default sources config from the project root.
func LoadSources() (*datasource.Config, error) {
	path, err := ProjectPath(DefaultSourcesPath)
	if err != nil {
		return nil, err
	}
	return datasource.LoadConfig(path)
}
