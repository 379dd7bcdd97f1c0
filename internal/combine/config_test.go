package combine

import (
	"strings"
	"testing"
)

func TestDecodeConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("COMBINE_ROOT", "/srv/data")

	c, err := DecodeConfig(strings.NewReader(`{"input_dir":"$COMBINE_ROOT/final"}`))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	o := c.Options()
	if o.InputDir != "/srv/data/final" {
		t.Fatalf("InputDir=%q", o.InputDir)
	}
	if o.Output != DefaultOutput || o.RowsPerFile != DefaultRowsPerFile || o.Seed != DefaultSeed {
		t.Fatalf("defaults not applied: %+v", o)
	}

	c, err = DecodeConfig(strings.NewReader(`{"seed":0,"rows_per_file":2}`))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if o := c.Options(); o.Seed != 0 || o.RowsPerFile != 2 {
		t.Fatalf("explicit values lost: %+v", o)
	}
}

func TestDecodeConfig_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := DecodeConfig(strings.NewReader(`{"rows":5}`)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	if err := (Options{InputDir: "in", Output: "out", RowsPerFile: -1}).Validate(); err == nil {
		t.Fatalf("negative rows must be rejected")
	}
	if err := (Options{}).withDefaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
