package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the pipeline file at path over Default(). Files ending in .yaml
// or .yml are YAML, anything else JSON. Unknown fields are rejected.
func Load(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	p, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// Decode decodes data over Default(). ext selects the format (".yaml",
// ".yml" or anything else for JSON).
func Decode(data []byte, ext string) (Pipeline, error) {
	p := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return Pipeline{}, err
		}
	default:
		// encoding/json decodes array elements into the existing ones, so
		// default sources would leak into a shorter list.
		var probe struct {
			Sources json.RawMessage `json:"sources"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return Pipeline{}, err
		}
		if probe.Sources != nil {
			p.Sources = nil
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	}
	return p, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are skipped and variables
// already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		err := godotenv.Load(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides p from environment variables read through getenv:
//
//	PROMOETL_JOB, SOURCE_DIR, LOAD_ON_SCHEMA_CHANGE,
//	OPERATIONAL_{KIND,DSN,HOST,PORT,DATABASE,USER,PASSWORD,SSLMODE},
//	WAREHOUSE_{KIND,DSN,HOST,PORT,DATABASE,USER,PASSWORD,SSLMODE}
//
// Empty variables are ignored.
func ApplyEnv(p *Pipeline, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&p.Job, "PROMOETL_JOB")
	set(&p.SourceDir, "SOURCE_DIR")
	set(&p.Load.OnSchemaChange, "LOAD_ON_SCHEMA_CHANGE")

	for _, st := range []struct {
		prefix string
		s      *Store
	}{
		{"OPERATIONAL_", &p.Operational},
		{"WAREHOUSE_", &p.Warehouse},
	} {
		set(&st.s.Kind, st.prefix+"KIND")
		set(&st.s.DSN, st.prefix+"DSN")
		set(&st.s.Host, st.prefix+"HOST")
		set(&st.s.Database, st.prefix+"DATABASE")
		set(&st.s.User, st.prefix+"USER")
		set(&st.s.Password, st.prefix+"PASSWORD")
		set(&st.s.SSLMode, st.prefix+"SSLMODE")
		if v := strings.TrimSpace(getenv(st.prefix + "PORT")); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%sPORT=%q: %w", st.prefix, v, err)
			}
			st.s.Port = port
		}
	}
	return nil
}
