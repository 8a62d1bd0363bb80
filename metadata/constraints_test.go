package metadata

import (
	"math"
	"testing"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	group := &interfaces.ConstraintGroup{
		Constraints: []interfaces.Constraint{
			{Name: "title", Kind: interfaces.ConstraintMandatory, SourceProperty: "Title"},
			{Name: "mapped", Kind: interfaces.ConstraintMapping, SourceProperty: "Author", TargetProperty: "cm:author"},
			{Name: "pages", Kind: interfaces.ConstraintAllowableType, SourceProperty: "Pages", ValueType: interfaces.PropertyNumber},
			{Name: "published", Kind: interfaces.ConstraintAllowableType, SourceProperty: "Published", ValueType: interfaces.PropertyDateTime},
			{Name: "status", Kind: interfaces.ConstraintAllowableTypeAndValues, SourceProperty: "Status", ValueType: interfaces.PropertyString, AllowableValues: []string{"draft", "final"}},
			{Name: "level", Kind: interfaces.ConstraintAllowableTypeAndValues, SourceProperty: "Level", ValueType: interfaces.PropertyNumber, AllowableValues: []string{"1", "2.0"}},
		},
	}

	tests := []struct {
		name       string
		props      map[string]any
		errorCount int
	}{
		{
			name:       "valid with all properties",
			props:      map[string]any{"Title": "X", "Pages": "12", "Published": "2024-01-02", "Status": "final", "Level": 2},
			errorCount: 0,
		},
		{
			name:       "only mandatory property",
			props:      map[string]any{"Title": "X"},
			errorCount: 0,
		},
		{
			name:       "missing mandatory property",
			props:      map[string]any{},
			errorCount: 1,
		},
		{
			name:       "nil counts as absent",
			props:      map[string]any{"Title": nil},
			errorCount: 1,
		},
		{
			name:       "number coercion failure",
			props:      map[string]any{"Title": "X", "Pages": "many"},
			errorCount: 1,
		},
		{
			name:       "date coercion failure",
			props:      map[string]any{"Title": "X", "Published": true},
			errorCount: 1,
		},
		{
			name:       "value not allowed",
			props:      map[string]any{"Title": "X", "Status": "archived"},
			errorCount: 1,
		},
		{
			name:       "numeric allowable value compared canonically",
			props:      map[string]any{"Title": "X", "Level": "1.0"},
			errorCount: 0,
		},
		{
			name:       "every violation reported",
			props:      map[string]any{"Pages": "x", "Status": "nope", "Level": 3},
			errorCount: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(group, tt.props)
			assert.Len(t, errs, tt.errorCount, errs)
		})
	}
}

func TestValidate_MandatoryTitleScenario(t *testing.T) {
	group := &interfaces.ConstraintGroup{
		Constraints: []interfaces.Constraint{
			{Name: "Title", Kind: interfaces.ConstraintMandatory, SourceProperty: "Title"},
		},
	}

	assert.NotEmpty(t, Validate(group, map[string]any{}))
	assert.Empty(t, Validate(group, map[string]any{"Title": "X"}))
	assert.Empty(t, Validate(nil, map[string]any{}))
}

func TestCoerce(t *testing.T) {
	v, err := Coerce("42.5", interfaces.PropertyNumber)
	require.NoError(t, err)
	assert.Equal(t, 42.5, v.Num)
	assert.Equal(t, "42.5", v.Canonical())

	v, err = Coerce("TRUE", interfaces.PropertyBoolean)
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, err = Coerce("2024-03-01T10:00:00Z", interfaces.PropertyDateTime)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), v.Time)

	v, err = Coerce(7, interfaces.PropertyString)
	require.NoError(t, err)
	assert.Equal(t, "7", v.Str)

	_, err = Coerce(1, interfaces.PropertyBoolean)
	assert.Error(t, err)

	_, err = Coerce("x", interfaces.PropertyType("Blob"))
	assert.Error(t, err)

	for _, raw := range []any{"NaN", "Inf", "-Infinity", math.NaN(), math.Inf(1)} {
		_, err = Coerce(raw, interfaces.PropertyNumber)
		assert.Error(t, err, "%v is not a storable number", raw)
	}
}

func TestCheckDefinitions(t *testing.T) {
	assert.NoError(t, CheckDefinitions([]interfaces.Constraint{
		{Name: "a", Kind: interfaces.ConstraintMandatory, SourceProperty: "A"},
		{Name: "b", Kind: interfaces.ConstraintAllowableType, SourceProperty: "B", ValueType: interfaces.PropertyBoolean},
	}))

	err := CheckDefinitions([]interfaces.Constraint{
		{Name: "a", Kind: interfaces.ConstraintAllowableType, SourceProperty: "A"},
	})
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	err = CheckDefinitions([]interfaces.Constraint{
		{Name: "a", Kind: interfaces.ConstraintMandatory, SourceProperty: "A"},
		{Name: "a", Kind: interfaces.ConstraintMandatory, SourceProperty: "B"},
	})
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestUpdateConstraints(t *testing.T) {
	group := &interfaces.ConstraintGroup{
		Constraints: []interfaces.Constraint{
			{Name: "title", Kind: interfaces.ConstraintMandatory, SourceProperty: "Title"},
			{Name: "pages", Kind: interfaces.ConstraintAllowableType, SourceProperty: "Pages", ValueType: interfaces.PropertyNumber},
		},
	}

	UpdateConstraints(group, []interfaces.Constraint{
		{Name: "title", Kind: interfaces.ConstraintMapping, SourceProperty: "Title"},
		{Name: "status", Kind: interfaces.ConstraintMandatory, SourceProperty: "Status"},
	})

	require.Len(t, group.Constraints, 3)
	assert.Equal(t, "title", group.Constraints[0].Name)
	assert.Equal(t, interfaces.ConstraintMapping, group.Constraints[0].Kind)
	assert.Equal(t, "pages", group.Constraints[1].Name)
	assert.Equal(t, "status", group.Constraints[2].Name)
}

func TestTypedPropertiesAndMerge(t *testing.T) {
	group := &interfaces.ConstraintGroup{
		Constraints: []interfaces.Constraint{
			{Name: "pages", Kind: interfaces.ConstraintAllowableType, SourceProperty: "Pages", ValueType: interfaces.PropertyNumber},
		},
	}

	typed := TypedProperties(group, map[string]any{"Pages": "12", "Title": "X", "Draft": true})
	assert.Equal(t, interfaces.NumberValue(12), typed["Pages"])
	assert.Equal(t, interfaces.StringValue("X"), typed["Title"])
	assert.Equal(t, interfaces.BooleanValue(true), typed["Draft"])

	pg := &interfaces.PropertyGroup{}
	pg.Set("Title", interfaces.StringValue("old"))
	MergeProperties(pg, typed)

	require.Len(t, pg.Properties, 3)
	assert.Equal(t, "Title", pg.Properties[0].Name)
	title, ok := pg.Get("Title")
	require.True(t, ok)
	assert.Equal(t, "X", title.Str)
	assert.Equal(t, "Draft", pg.Properties[1].Name)
	assert.Equal(t, "Pages", pg.Properties[2].Name)
}
