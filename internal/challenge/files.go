package challenge

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hpungsan/noctfcli/internal/errors"
)

// MissingFiles returns every declared file that does not exist under baseDir,
// in declaration order.
func MissingFiles(cfg *Config, baseDir string) []string {
	var missing []string
	for _, f := range cfg.Files {
		if _, err := os.Stat(filepath.Join(baseDir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// LoadComplete validates a definition and checks that every referenced file exists.
// No remote call may be made for a definition until this succeeds.
func LoadComplete(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if missing := MissingFiles(cfg, filepath.Dir(path)); len(missing) > 0 {
		return nil, withSource(errors.NewMissingFiles(missing), path)
	}
	return cfg, nil
}

// FindDefinitions returns every noctf.yaml under root at any depth, sorted by path.
// A root that is itself a definition file is returned as-is.
func FindDefinitions(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NewValidation("challenges directory not found: "+root, "", nil)
	}
	if !info.IsDir() {
		if filepath.Base(root) == DefinitionFile {
			return []string{root}, nil
		}
		return nil, errors.NewValidation("not a directory: "+root, "", nil)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == DefinitionFile {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	sort.Strings(paths)
	return paths, nil
}

// DirName is the identifier used for a definition whose slug is unknown.
func DirName(path string) string {
	return filepath.Base(filepath.Dir(path))
}
