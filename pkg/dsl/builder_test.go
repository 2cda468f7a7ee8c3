package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_DerivesDependents(t *testing.T) {
	b := New()
	b.Add("App").Imports("Counter", "format")
	b.Add("Counter").AcceptsSelf().Imports("format")
	b.Add("format")

	records, err := b.Build()
	require.NoError(t, err)
	require.Len(t, records, 3)

	app, counter, format := records[0], records[1], records[2]
	assert.Equal(t, "App", app.ID)
	assert.True(t, app.IsRoot())
	assert.Equal(t, []string{"Counter", "format"}, app.Dependencies)

	assert.True(t, counter.AcceptsSelf)
	assert.Equal(t, []string{"App"}, counter.Dependents)
	assert.Equal(t, uint64(1), counter.Version)

	assert.Equal(t, []string{"App", "Counter"}, format.Dependents)
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New()
	first := b.Add("Counter").Version(4)
	second := b.Add("Counter").AcceptsSelf()
	assert.Same(t, first, second)

	records, err := b.Build()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(4), records[0].Version)
	assert.True(t, records[0].AcceptsSelf)
}

func TestBuilder_Chaining(t *testing.T) {
	b := New()
	b.Add("App").Imports("Counter").
		Add("Counter").AcceptsSelf()

	records, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"App"}, records[1].Dependents)
}

func TestBuilder_Errors(t *testing.T) {
	b := New()
	b.Add("App").Imports("Ghost")
	_, err := b.Build()
	assert.ErrorContains(t, err, `imports unknown module "Ghost"`)

	b = New()
	b.Add("App").Imports("App")
	_, err = b.Build()
	assert.ErrorContains(t, err, "imports itself")

	_, err = New().Bump("Nope")
	assert.Error(t, err)
}

func TestBuilder_Bump(t *testing.T) {
	b := New()
	b.Add("App").Imports("Counter")
	b.Add("Counter").AcceptsSelf()

	entry, err := b.Bump("Counter")
	require.NoError(t, err)
	assert.Equal(t, "Counter", entry.ModuleID)
	assert.Equal(t, uint64(2), entry.Version)
	assert.True(t, entry.AcceptsSelf)
	assert.Equal(t, []string{"App"}, entry.Dependents)

	entry, err = b.Bump("Counter")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), entry.Version)
}
