package registry

import (
	"testing"

	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func model(name string, refs ...string) *core.Model {
	m := &core.Model{Name: name, FilePath: "models/" + name + ".sql"}
	for _, r := range refs {
		m.DeclaredDependencies = append(m.DeclaredDependencies, core.Ref{Kind: core.RefModel, Name: r})
	}
	return m
}

func TestBuild_Lookups(t *testing.T) {
	table, err := Build(Declarations{
		Models: []*core.Model{model("stg_orders"), model("orders", "stg_orders")},
		Sources: []*core.Source{
			{SourceName: "raw", TableName: "orders", DeclaredIdentifier: "raw_orders"},
			{SourceName: "raw", TableName: "customers"},
		},
		Variables: []*core.Variable{{Name: "start_date", DefaultValue: "2020-01-01"}},
	})
	require.NoError(t, err)

	m, ok := table.Model("orders")
	require.True(t, ok)
	assert.Equal(t, "orders", m.Name)

	_, ok = table.Model("missing")
	assert.False(t, ok)

	s, ok := table.Source("raw", "orders")
	require.True(t, ok)
	assert.Equal(t, "raw_orders", s.Identifier())

	_, ok = table.Source("raw", "payments")
	assert.False(t, ok)

	v, ok := table.Variable("start_date")
	require.True(t, ok)
	assert.Equal(t, "2020-01-01", v.DefaultValue)

	assert.Len(t, table.Models(), 2)
	assert.Equal(t, "customers", table.Sources()[0].TableName)
	assert.Empty(t, table.Cycles())
	assert.Equal(t, []string{"stg_orders"}, table.Graph().GetParents("orders"))
}

func TestBuild_DuplicateModel(t *testing.T) {
	a := model("orders")
	b := model("orders")
	b.FilePath = "models/marts/orders.sql"

	_, err := Build(Declarations{Models: []*core.Model{a, b}})
	require.Error(t, err)

	var dupErr *DuplicateError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "model", dupErr.Kind)
	assert.Equal(t, "orders", dupErr.Key)
	assert.Contains(t, err.Error(), "models/marts/orders.sql")
}

func TestBuild_DuplicateSource(t *testing.T) {
	_, err := Build(Declarations{Sources: []*core.Source{
		{SourceName: "raw", TableName: "orders"},
		{SourceName: "raw", TableName: "orders"},
	}})

	var dupErr *DuplicateError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "source", dupErr.Kind)
	assert.Equal(t, "raw.orders", dupErr.Key)
}

func TestBuild_SameTableDifferentSources(t *testing.T) {
	_, err := Build(Declarations{Sources: []*core.Source{
		{SourceName: "raw", TableName: "orders"},
		{SourceName: "legacy", TableName: "orders"},
	}})
	assert.NoError(t, err)
}

func TestBuild_CycleAffected(t *testing.T) {
	table, err := Build(Declarations{Models: []*core.Model{
		model("a", "b"),
		model("b", "a"),
		model("c"),
		model("d", "a"),
		model("e", "c", "missing"),
	}})
	require.NoError(t, err)

	require.Len(t, table.Cycles(), 1)
	assert.ElementsMatch(t, []string{"a", "b"}, table.Cycles()[0][:2])

	assert.True(t, table.CycleAffected("a"))
	assert.True(t, table.CycleAffected("b"))
	assert.True(t, table.CycleAffected("d"), "downstream of a cycle")
	assert.False(t, table.CycleAffected("c"))
	assert.False(t, table.CycleAffected("e"))
	assert.Equal(t, []string{"a", "b", "d"}, table.AffectedModels())
	assert.Equal(t, table.Cycles()[0], table.CycleFor("d"))
	assert.Nil(t, table.CycleFor("c"))
}

func TestBuild_SelfReference(t *testing.T) {
	table, err := Build(Declarations{Models: []*core.Model{model("a", "a")}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "a"}}, table.Cycles())
	assert.True(t, table.CycleAffected("a"))
}
