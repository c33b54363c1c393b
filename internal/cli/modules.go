package cli

import (
	"path/filepath"

	"github.com/roach88/petal/internal/config"
	"github.com/roach88/petal/internal/module"
	"github.com/roach88/petal/internal/modules/articles"
	"github.com/roach88/petal/internal/modules/indexer"
)

// SeedFile is the article seed file, relative to the data root.
const SeedFile = "articles.yaml"

// BuiltinModules registers the modules shipped with petal.
func BuiltinModules(s *config.Settings) (*module.Registry, error) {
	reg := module.NewRegistry()
	for _, m := range []module.Module{
		articles.New(filepath.Join(s.Pipeline.DataRoot, SeedFile)),
		indexer.New(),
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
