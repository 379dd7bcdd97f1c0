package combine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Defaults for a combination run.
const (
	DefaultInputDir    = "final"
	DefaultOutput      = "group7_combined_data.csv"
	DefaultRowsPerFile = 5
	DefaultSeed        = 42
)

// Config is the JSON form of a run configuration. Zero fields take the
// package defaults; paths are expanded with os.ExpandEnv.
//
//	{
//	  "input_dir": "final",
//	  "output": "out/combined.csv",
//	  "rows_per_file": 5,
//	  "seed": 42
//	}
type Config struct {
	InputDir    string `json:"input_dir"`
	Output      string `json:"output"`
	RowsPerFile int    `json:"rows_per_file"`
	Seed        *int64 `json:"seed,omitempty"`
}

// DecodeConfig reads a Config, rejecting unknown fields.
func DecodeConfig(r io.Reader) (Config, error) {
	var c Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("decode combine config: %w", err)
	}
	return c, nil
}

// LoadConfig opens path and decodes it.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// Options returns run options with defaults applied.
func (c Config) Options() Options {
	o := Options{
		InputDir:    os.ExpandEnv(c.InputDir),
		Output:      os.ExpandEnv(c.Output),
		RowsPerFile: c.RowsPerFile,
		Seed:        DefaultSeed,
	}
	if c.Seed != nil {
		o.Seed = *c.Seed
	}
	return o.withDefaults()
}

// Validate reports configuration errors that would make a run meaningless.
func (o Options) Validate() error {
	if o.RowsPerFile < 0 {
		return fmt.Errorf("rows per file must be >= 0, got %d", o.RowsPerFile)
	}
	if o.InputDir == "" {
		return fmt.Errorf("input dir is required")
	}
	if o.Output == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.InputDir == "" {
		o.InputDir = DefaultInputDir
	}
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.RowsPerFile == 0 {
		o.RowsPerFile = DefaultRowsPerFile
	}
	return o
}
