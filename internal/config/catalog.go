package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

// catalogFile is the on-disk shape of a parameter catalog:
//
//	parameters:
//	  - name: orp
//	    unit: mV
//	    valid_range: {min: -2000, max: 2000}
//	    safe_range: {min: 200, max: 800}
//	    thresholds:
//	      minor:   {low: 100, high: 100}
//	      average: {low: 200, high: 200}
//	      major:   {low: 300, high: 300}
type catalogFile struct {
	Parameters []domain.ParameterSpec `mapstructure:"parameters"`
}

// LoadCatalog reads a parameter catalog from path (YAML, JSON or TOML, by
// extension). An empty path yields the default catalog.
func LoadCatalog(path string) (*domain.Catalog, error) {
	if path == "" {
		return domain.DefaultCatalog(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read parameters file: %w", err)
	}

	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode parameters file: %w", err)
	}
	if len(file.Parameters) == 0 {
		return nil, fmt.Errorf("parameters file %s defines no parameters", path)
	}

	catalog, err := domain.NewCatalog(file.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("parameters file %s: %w", path, err)
	}
	return catalog, nil
}
