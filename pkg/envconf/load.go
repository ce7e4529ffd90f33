// Package envconf fills configuration structs from the process environment.
//
// Every field tagged with `env:"NAME"` is required unless it also carries an
// `envDefault` tag. Nested structs are walked recursively. A `.env` file in the
// working directory (or the files passed to LoadFiles) is read first; variables
// already present in the environment win over the file.
package envconf

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig wraps every failure reported by the environment parser,
// missing required variables included.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads an optional .env file and parses the environment into dst.
func Load(dst any) error {
	return LoadFiles(dst, ".env")
}

// LoadFiles is Load with an explicit list of dotenv files. Missing files are skipped.
func LoadFiles(dst any, files ...string) error {
	if dst == nil {
		return errors.New("destination is nil")
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load dotenv %q: %w", f, err)
		}
	}

	err := env.ParseWithOptions(dst, env.Options{RequiredIfNoDef: true})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
