package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type schemaFile struct {
	// Extend keeps the built-in schemas and adds the file's entities.
	Extend   bool     `yaml:"extend"`
	Entities []Entity `yaml:"entities"`
}

// LoadFile builds a registry from a YAML schema file.
//
//	extend: true
//	entities:
//	  - name: Payers
//	    table: Payers
//	    primaryKey: ID
//	    columns: [ID, Name, Plan Codes (JSON)]
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}

	entities := f.Entities
	if f.Extend {
		entities = append(Credentialing(), f.Entities...)
	}
	return NewRegistry(entities...)
}
