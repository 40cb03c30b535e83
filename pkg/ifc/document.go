package ifc

import "time"

// DocumentSchemaVersion is bumped when the extracted JSON shape changes.
const DocumentSchemaVersion = 1

// Value type taxonomy for extracted properties and quantities.
const (
	ValueTypeString      = "string"
	ValueTypeInteger     = "integer"
	ValueTypeDouble      = "double"
	ValueTypeBoolean     = "boolean"
	ValueTypeEnumeration = "enumeration"
	ValueTypeRange       = "range"
	ValueTypeList        = "list"
	ValueTypeTable       = "table"
	ValueTypeComplex     = "complex"
	ValueTypeUnknown     = "unknown"
)

// Document is the properties artifact produced by extraction.
type Document struct {
	SchemaVersion int       `json:"schemaVersion"`
	ExtractedAt   time.Time `json:"extractedAt"`
	TotalElements int       `json:"totalElements"`
	Elements      []Element `json:"elements"`
}

// Element is one product entity with its resolved property data.
type Element struct {
	EntityLabel      int64         `json:"entityLabel"`
	GlobalID         string        `json:"globalId"`
	Name             string        `json:"name,omitempty"`
	TypeName         string        `json:"typeName"`
	Description      string        `json:"description,omitempty"`
	ObjectType       string        `json:"objectType,omitempty"`
	TypeObjectName   string        `json:"typeObjectName,omitempty"`
	TypeObjectType   string        `json:"typeObjectType,omitempty"`
	PropertySets     []PropertySet `json:"propertySets"`
	QuantitySets     []QuantitySet `json:"quantitySets"`
	TypePropertySets []PropertySet `json:"typePropertySets"`
}

// PropertySet groups named properties attached to an element.
type PropertySet struct {
	Name           string     `json:"name"`
	GlobalID       string     `json:"globalId,omitempty"`
	IsTypeProperty bool       `json:"isTypeProperty"`
	Properties     []Property `json:"properties"`
}

// QuantitySet groups physical quantities attached to an element.
type QuantitySet struct {
	Name       string     `json:"name"`
	GlobalID   string     `json:"globalId,omitempty"`
	Quantities []Property `json:"quantities"`
}

// Property is a single extracted value. Quantities carry canonical units
// (m, m2, m3, kg, s) and no unit for counts.
type Property struct {
	Name      string `json:"name"`
	Value     any    `json:"value,omitempty"`
	ValueType string `json:"valueType"`
	Unit      string `json:"unit,omitempty"`
}
