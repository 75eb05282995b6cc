package regions

import (
	"os"

	"github.com/pkg/errors"
)

// LoadFile loads the given YAML file and merges it over the embedded catalog.
// Entries of the file replace the embedded entries with the same name.
func LoadFile(path string) (*Catalog, error) {
	def, err := Default()
	if err != nil {
		return nil, errors.Wrap(err, "load embedded catalog error")
	}
	if path == "" {
		return def, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file error")
	}

	ext, err := unmarshal(b)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	c := def.Merge(ext)
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate catalog error")
	}

	return c, nil
}
