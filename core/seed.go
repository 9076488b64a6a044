package core

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedDocument struct {
	Recados []RecadoInput `yaml:"recados"`
}

// ParseSeed decodes a YAML seed document:
//
//	recados:
//	  - from: Joana
//	    to: João
//	    text: Este é um recado de teste
//
// Every entry is checked against RecadoCreateSchema.
func ParseSeed(data []byte) ([]RecadoInput, error) {
	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, in := range doc.Recados {
		if _, err := RecadoCreateSchema.Validate(map[string]any{
			"text": in.Text,
			"from": in.From,
			"to":   in.To,
		}); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i+1, err)
		}
	}
	return doc.Recados, nil
}

// LoadSeed reads path and inserts its recados into repo in file order.
// An empty path is a no-op.
func LoadSeed(ctx context.Context, repo RecadoRepository, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file %s: %w", path, err)
	}
	inputs, err := ParseSeed(data)
	if err != nil {
		return 0, err
	}
	for _, in := range inputs {
		if _, err := repo.Create(ctx, in); err != nil {
			return 0, err
		}
	}
	return len(inputs), nil
}
