package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *EntityMetadata {
	return &EntityMetadata{
		Name:          "gadget",
		TableName:     "gadgets",
		PrimaryKey:    "id",
		IdentityField: "name",
		Fields:        []string{"id", "name", "owner_id", "secret", "created_at"},
		WritableFields:   []string{"name"},
		SearchableFields: []string{"name"},
		FilterableFields: []string{"name", "created_at"},
		SortableFields:   []string{"name", "created_at"},
		DefaultSort:      Sort{Field: "created_at", Order: "DESC"},
		ExcludedFields:   []string{"secret"},
		OwnerField:       "owner_id",
		RLSPolicy: map[string]PolicyKind{
			"admin":    PolicyAllRecords,
			"customer": PolicyOwnRecordOnly,
		},
	}
}

func TestNewRegistryAcceptsValidRecord(t *testing.T) {
	reg, err := NewRegistry([]*EntityMetadata{validRecord()})
	require.NoError(t, err)

	m, err := reg.Get("gadget")
	require.NoError(t, err)
	assert.Equal(t, "gadgets", m.TableName)
}

func TestNewRegistryRejectsInconsistentRecords(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*EntityMetadata)
	}{
		{"default sort not sortable", func(m *EntityMetadata) { m.DefaultSort.Field = "owner_id" }},
		{"default sort bad order", func(m *EntityMetadata) { m.DefaultSort.Order = "SIDEWAYS" }},
		{"searchable field unknown", func(m *EntityMetadata) { m.SearchableFields = []string{"ghost"} }},
		{"searchable and excluded", func(m *EntityMetadata) { m.SearchableFields = append(m.SearchableFields, "secret") }},
		{"own_record_only without owner", func(m *EntityMetadata) { m.OwnerField = "" }},
		{"unknown policy", func(m *EntityMetadata) { m.RLSPolicy["admin"] = PolicyKind("maybe") }},
		{"primary key unknown", func(m *EntityMetadata) { m.PrimaryKey = "uuid" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := validRecord()
			tc.mutate(record)
			_, err := NewRegistry([]*EntityMetadata{record})
			assert.Error(t, err)
		})
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]*EntityMetadata{validRecord(), validRecord()})
	assert.Error(t, err)
}

func TestRegistryGetUnknownEntity(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	_, err = reg.Get("phantom")
	assert.Error(t, err)
}

func TestValidateField(t *testing.T) {
	reg, err := NewRegistry([]*EntityMetadata{validRecord()})
	require.NoError(t, err)

	ok, err := reg.ValidateField("gadget", "name", FieldSearch)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.ValidateField("gadget", "owner_id", FieldSearch)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.ValidateField("gadget", "created_at", FieldSort)
	require.NoError(t, err)
	assert.True(t, ok)

	// secret is a real column but not on any allow-list.
	for _, kind := range []FieldKind{FieldSearch, FieldFilter, FieldSort} {
		ok, err = reg.ValidateField("gadget", "secret", kind)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, err = reg.ValidateField("phantom", "name", FieldSearch)
	assert.Error(t, err)
}

func TestShippedEntitiesAreValid(t *testing.T) {
	reg, err := NewRegistry(Entities())
	require.NoError(t, err)
	assert.Contains(t, reg.Entities(), "work_order")
	assert.Contains(t, reg.Entities(), "invoice")
}
