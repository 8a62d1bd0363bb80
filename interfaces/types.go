package interfaces

import (
	"io"
	"strconv"
	"time"
)

// PropertyType is the declared type of a property value.
type PropertyType string

const (
	PropertyString   PropertyType = "String"
	PropertyNumber   PropertyType = "Number"
	PropertyDateTime PropertyType = "DateTime"
	PropertyBoolean  PropertyType = "Boolean"
)

// Valid reports whether t is one of the supported property types.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyString, PropertyNumber, PropertyDateTime, PropertyBoolean:
		return true
	default:
		return false
	}
}

// PropertyValue is a sum type over String, Number, DateTime and Boolean.
// Only the field matching Type is meaningful.
type PropertyValue struct {
	Type PropertyType `json:"type"`
	Str  string       `json:"string,omitempty"`
	Num  float64      `json:"number,omitempty"`
	Time time.Time    `json:"dateTime,omitempty"`
	Bool bool         `json:"boolean,omitempty"`
}

func StringValue(s string) PropertyValue {
	return PropertyValue{Type: PropertyString, Str: s}
}

func NumberValue(n float64) PropertyValue {
	return PropertyValue{Type: PropertyNumber, Num: n}
}

func DateTimeValue(t time.Time) PropertyValue {
	return PropertyValue{Type: PropertyDateTime, Time: t.UTC()}
}

func BooleanValue(b bool) PropertyValue {
	return PropertyValue{Type: PropertyBoolean, Bool: b}
}

// Canonical returns the canonical string form used for allowable-value checks.
func (v PropertyValue) Canonical() string {
	switch v.Type {
	case PropertyNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case PropertyDateTime:
		return v.Time.UTC().Format(time.RFC3339)
	case PropertyBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Interface returns the value as a plain Go value.
func (v PropertyValue) Interface() any {
	switch v.Type {
	case PropertyNumber:
		return v.Num
	case PropertyDateTime:
		return v.Time
	case PropertyBoolean:
		return v.Bool
	default:
		return v.Str
	}
}

// Property is a named, typed metadata value.
type Property struct {
	Name  string        `json:"name"`
	Value PropertyValue `json:"value"`
}

// PropertyGroup is an ordered typed metadata bag owned by exactly one
// collection or item.
type PropertyGroup struct {
	ID         string     `json:"id"`
	Properties []Property `json:"properties"`
	Revision   int64      `json:"revision"`
}

// Get returns the named property value.
func (g *PropertyGroup) Get(name string) (PropertyValue, bool) {
	for _, p := range g.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return PropertyValue{}, false
}

// Set inserts or overwrites a property, keeping insertion order.
func (g *PropertyGroup) Set(name string, value PropertyValue) {
	for i := range g.Properties {
		if g.Properties[i].Name == name {
			g.Properties[i].Value = value
			return
		}
	}
	g.Properties = append(g.Properties, Property{Name: name, Value: value})
}

// ConstraintKind selects the validation rule applied by a constraint.
type ConstraintKind string

const (
	ConstraintMandatory              ConstraintKind = "Mandatory"
	ConstraintMapping                ConstraintKind = "Mapping"
	ConstraintAllowableType          ConstraintKind = "AllowableType"
	ConstraintAllowableTypeAndValues ConstraintKind = "AllowableTypeAndValues"
)

// Constraint is a named validation rule evaluated against an item's property bag.
type Constraint struct {
	Name            string         `json:"name"`
	Kind            ConstraintKind `json:"kind"`
	SourceProperty  string         `json:"sourceProperty"`
	TargetProperty  string         `json:"targetProperty,omitempty"`
	ValueType       PropertyType   `json:"valueType,omitempty"`
	AllowableValues []string       `json:"allowableValues,omitempty"`
}

// ConstraintGroup is the ordered set of constraints owned by a collection.
type ConstraintGroup struct {
	ID          string       `json:"id"`
	Constraints []Constraint `json:"constraints"`
	Revision    int64        `json:"revision"`
}

// Collection is a named top-level container of items bound to one provider tag.
// Counters are mutated by orchestration only.
type Collection struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	ProviderTag       string    `json:"providerTag"`
	NumberOfItems     int64     `json:"numberOfItems"`
	TotalSizeBytes    int64     `json:"totalSizeBytes"`
	ConstraintGroupID string    `json:"constraintGroupId,omitempty"`
	PropertyGroupID   string    `json:"propertyGroupId,omitempty"`
	CreatedDate       time.Time `json:"createdDate"`
	LastModified      time.Time `json:"lastModified"`
	Revision          int64     `json:"revision"`
}

// Item is a named unit of content within a collection. VersionIDs is append-only.
type Item struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CollectionID    string    `json:"collectionId"`
	CreatedDate     time.Time `json:"createdDate"`
	LastModified    time.Time `json:"lastModified"`
	VersionIDs      []string  `json:"versionIds"`
	PropertyGroupID string    `json:"propertyGroupId,omitempty"`
	Revision        int64     `json:"revision"`
}

// ItemVersion is one immutable, numbered revision of an item's content. Size
// and ContentHash are recorded once the content has been stored.
type ItemVersion struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	Major       int       `json:"major"`
	Minor       int       `json:"minor"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mimeType"`
	ContentHash string    `json:"contentHash"`
	CreatedDate time.Time `json:"createdDate"`
	Revision    int64     `json:"revision"`
}

// VersionLabel returns the "{major}_{minor}" label used in addresses.
func (v *ItemVersion) VersionLabel() string {
	return strconv.Itoa(v.Major) + "_" + strconv.Itoa(v.Minor)
}

// StorageBinding is a named, configured instance of a storage backend.
// Immutable after load.
type StorageBinding struct {
	Tag          string         `json:"tag" yaml:"tag"`
	ProviderType string         `json:"providerType" yaml:"providerType"`
	Properties   map[string]any `json:"properties" yaml:"properties"`
}

// OperationStatus is the outcome of a provider operation.
type OperationStatus string

const (
	StatusOk     OperationStatus = "Ok"
	StatusFailed OperationStatus = "Failed"
)

// StorageOperationResult is returned by every provider operation.
// Stream is only set by reads and must be closed by the caller.
type StorageOperationResult struct {
	Status       OperationStatus
	Properties   map[string]PropertyValue
	Stream       io.ReadCloser
	ErrorMessage string
	Size         int64
}

// CacheValueKind tags the populated field of a CacheValue.
type CacheValueKind string

const (
	CacheString   CacheValueKind = "string"
	CacheInt64    CacheValueKind = "int64"
	CacheInt32    CacheValueKind = "int32"
	CacheDateTime CacheValueKind = "datetime"
)

// CacheValue is a sum type over string, int64, int32 and datetime.
type CacheValue struct {
	Kind  CacheValueKind `json:"kind"`
	Str   string         `json:"string,omitempty"`
	Int64 int64          `json:"int64,omitempty"`
	Int32 int32          `json:"int32,omitempty"`
	Time  time.Time      `json:"datetime,omitempty"`
}

// CacheEntry is unique per (Partition, Key).
type CacheEntry struct {
	Partition string     `json:"partition"`
	Key       string     `json:"key"`
	Value     CacheValue `json:"value"`
}
