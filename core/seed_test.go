package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeed(t *testing.T) {
	inputs, err := ParseSeed([]byte(`
recados:
  - from: Joana
    to: João
    text: Este é um recado de teste
  - from: Ana
    to: Bia
    text: Segundo recado
`))
	require.NoError(t, err)
	assert.Equal(t, []RecadoInput{
		{From: "Joana", To: "João", Text: "Este é um recado de teste"},
		{From: "Ana", To: "Bia", Text: "Segundo recado"},
	}, inputs)
}

func TestParseSeedRejectsInvalidEntry(t *testing.T) {
	_, err := ParseSeed([]byte("recados:\n  - from: J\n    to: João\n    text: oi\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed entry 1")

	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = ParseSeed([]byte("recados: [unclosed"))
	assert.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRecadoRepository()

	n, err := LoadSeed(ctx, repo, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recados:\n  - from: Joana\n    to: João\n    text: Este é um recado de teste\n"), 0o644))

	n, err = LoadSeed(ctx, repo, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Joana", rec.From)
	assert.False(t, rec.Read)

	_, err = LoadSeed(ctx, repo, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedSeedFileParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "configs", "seed.yaml"))
	require.NoError(t, err)
	inputs, err := ParseSeed(data)
	require.NoError(t, err)
	assert.NotEmpty(t, inputs)
}
