package ifc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/octopus-bim/octopus/internal/logger"
)

// Attribute positions shared by all IfcRoot subtypes.
const (
	attrGlobalID    = 0
	attrName        = 2
	attrDescription = 3
	attrObjectType  = 4
)

// productTypes enumerates the IfcProduct subtypes the extractor treats as
// elements. Spatial structure entities are included; they carry property
// sets in practice.
var productTypes = map[string]bool{
	"IFCWALL": true, "IFCWALLSTANDARDCASE": true, "IFCWALLELEMENTEDCASE": true,
	"IFCSLAB": true, "IFCROOF": true, "IFCCOVERING": true, "IFCPLATE": true,
	"IFCDOOR": true, "IFCWINDOW": true, "IFCCURTAINWALL": true,
	"IFCCOLUMN": true, "IFCBEAM": true, "IFCMEMBER": true, "IFCRAILING": true,
	"IFCSTAIR": true, "IFCSTAIRFLIGHT": true, "IFCRAMP": true, "IFCRAMPFLIGHT": true,
	"IFCFOOTING": true, "IFCPILE": true, "IFCBUILDINGELEMENTPROXY": true,
	"IFCFURNISHINGELEMENT": true, "IFCOPENINGELEMENT": true,
	"IFCSPACE": true, "IFCSITE": true, "IFCBUILDING": true, "IFCBUILDINGSTOREY": true,
	"IFCDISTRIBUTIONELEMENT": true, "IFCTRANSPORTELEMENT": true,
	"IFCREINFORCINGBAR": true, "IFCREINFORCINGMESH": true, "IFCTENDON": true,
}

// isProductType also admits the piping/HVAC/electrical families, which are
// too numerous to enumerate.
func isProductType(name string) bool {
	if productTypes[name] {
		return true
	}
	return strings.HasPrefix(name, "IFCFLOW") ||
		strings.HasPrefix(name, "IFCDISTRIBUTION") ||
		strings.HasPrefix(name, "IFCENERGYCONVERSION") ||
		strings.HasPrefix(name, "IFCELECTRIC")
}

// Extract walks the model and builds the properties document. A failure
// inside a single element skips that element with a warning; extraction
// always returns a document.
func Extract(m *Model) *Document {
	psetsByProduct := map[int64][]*Entity{}
	for _, rel := range m.EntitiesOfType("IFCRELDEFINESBYPROPERTIES") {
		def := m.Deref(rel.Attr(5))
		if def == nil {
			continue
		}
		for _, obj := range rel.Attr(4).List {
			if obj.Kind == KindRef {
				psetsByProduct[obj.Ref] = append(psetsByProduct[obj.Ref], def)
			}
		}
	}
	typeByProduct := map[int64]*Entity{}
	for _, rel := range m.EntitiesOfType("IFCRELDEFINESBYTYPE") {
		typeObj := m.Deref(rel.Attr(5))
		if typeObj == nil {
			continue
		}
		for _, obj := range rel.Attr(4).List {
			if obj.Kind == KindRef {
				typeByProduct[obj.Ref] = typeObj
			}
		}
	}

	var ids []int64
	for id := range m.entities {
		if isProductType(m.entities[id].Type) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	doc := &Document{
		SchemaVersion: DocumentSchemaVersion,
		ExtractedAt:   time.Now().UTC(),
		Elements:      make([]Element, 0, len(ids)),
	}
	for _, id := range ids {
		el, err := extractElement(m, m.entities[id], psetsByProduct[id], typeByProduct[id])
		if err != nil {
			logger.Warn("skipping element", "entity", id, "error", err)
			continue
		}
		doc.Elements = append(doc.Elements, el)
	}
	doc.TotalElements = len(doc.Elements)
	return doc
}

func extractElement(m *Model, e *Entity, psets []*Entity, typeObj *Entity) (el Element, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("element extraction panicked: %v", r)
		}
	}()

	el = Element{
		EntityLabel:      e.ID,
		GlobalID:         e.AttrString(attrGlobalID),
		Name:             e.AttrString(attrName),
		TypeName:         e.Type,
		Description:      e.AttrString(attrDescription),
		ObjectType:       e.AttrString(attrObjectType),
		PropertySets:     []PropertySet{},
		QuantitySets:     []QuantitySet{},
		TypePropertySets: []PropertySet{},
	}

	for _, def := range psets {
		switch def.Type {
		case "IFCPROPERTYSET":
			el.PropertySets = append(el.PropertySets, extractPropertySet(m, def, false))
		case "IFCELEMENTQUANTITY":
			el.QuantitySets = append(el.QuantitySets, extractQuantitySet(m, def))
		}
	}

	if typeObj != nil {
		el.TypeObjectName = typeObj.AttrString(attrName)
		// IfcElementType carries its predefined kind in the trailing
		// ElementType attribute.
		if v := typeObj.Attr(len(typeObj.Attrs) - 1); v.Kind == KindString {
			el.TypeObjectType = v.Str
		}
		for _, ref := range typeObj.Attr(5).List {
			pset := m.Deref(ref)
			if pset != nil && pset.Type == "IFCPROPERTYSET" {
				el.TypePropertySets = append(el.TypePropertySets, extractPropertySet(m, pset, true))
			}
		}
	}
	return el, nil
}

func extractPropertySet(m *Model, pset *Entity, isType bool) PropertySet {
	out := PropertySet{
		Name:           pset.AttrString(attrName),
		GlobalID:       pset.AttrString(attrGlobalID),
		IsTypeProperty: isType,
		Properties:     []Property{},
	}
	for _, ref := range pset.Attr(4).List {
		prop := m.Deref(ref)
		if prop == nil {
			continue
		}
		out.Properties = append(out.Properties, extractProperty(m, prop))
	}
	return out
}

func extractProperty(m *Model, prop *Entity) Property {
	name := prop.AttrString(0)
	switch prop.Type {
	case "IFCPROPERTYSINGLEVALUE":
		value, valueType := scalarValue(prop.Attr(2))
		return Property{Name: name, Value: value, ValueType: valueType}

	case "IFCPROPERTYENUMERATEDVALUE":
		var values []any
		for _, v := range prop.Attr(2).List {
			value, _ := scalarValue(v)
			values = append(values, value)
		}
		return Property{Name: name, Value: values, ValueType: ValueTypeEnumeration}

	case "IFCPROPERTYBOUNDEDVALUE":
		upper, _ := scalarValue(prop.Attr(2))
		lower, _ := scalarValue(prop.Attr(3))
		return Property{
			Name:      name,
			Value:     map[string]any{"lower": lower, "upper": upper},
			ValueType: ValueTypeRange,
		}

	case "IFCPROPERTYLISTVALUE":
		var values []any
		for _, v := range prop.Attr(2).List {
			value, _ := scalarValue(v)
			values = append(values, value)
		}
		return Property{Name: name, Value: values, ValueType: ValueTypeList}

	case "IFCPROPERTYTABLEVALUE":
		var defining, defined []any
		for _, v := range prop.Attr(2).List {
			value, _ := scalarValue(v)
			defining = append(defining, value)
		}
		for _, v := range prop.Attr(3).List {
			value, _ := scalarValue(v)
			defined = append(defined, value)
		}
		return Property{
			Name:      name,
			Value:     map[string]any{"definingValues": defining, "definedValues": defined},
			ValueType: ValueTypeTable,
		}

	case "IFCCOMPLEXPROPERTY":
		var nested []Property
		for _, ref := range prop.Attr(3).List {
			sub := m.Deref(ref)
			if sub != nil {
				nested = append(nested, extractProperty(m, sub))
			}
		}
		return Property{Name: name, Value: nested, ValueType: ValueTypeComplex}
	}
	return Property{Name: name, ValueType: ValueTypeUnknown}
}

// Canonical units for quantities. Counts carry no unit.
var quantityUnits = map[string]string{
	"IFCQUANTITYLENGTH": "m",
	"IFCQUANTITYAREA":   "m2",
	"IFCQUANTITYVOLUME": "m3",
	"IFCQUANTITYWEIGHT": "kg",
	"IFCQUANTITYTIME":   "s",
}

func extractQuantitySet(m *Model, eq *Entity) QuantitySet {
	out := QuantitySet{
		Name:       eq.AttrString(attrName),
		GlobalID:   eq.AttrString(attrGlobalID),
		Quantities: []Property{},
	}
	// IfcElementQuantity: ..., MethodOfMeasurement(4), Quantities(5).
	for _, ref := range eq.Attr(5).List {
		q := m.Deref(ref)
		if q == nil {
			continue
		}
		out.Quantities = append(out.Quantities, extractQuantity(q))
	}
	return out
}

func extractQuantity(q *Entity) Property {
	name := q.AttrString(0)
	v := q.Attr(3)
	if q.Type == "IFCQUANTITYCOUNT" {
		switch v.Kind {
		case KindInt:
			return Property{Name: name, Value: v.Int, ValueType: ValueTypeInteger}
		case KindReal:
			return Property{Name: name, Value: int64(v.Real), ValueType: ValueTypeInteger}
		}
		return Property{Name: name, ValueType: ValueTypeUnknown}
	}

	unit, ok := quantityUnits[q.Type]
	if !ok {
		return Property{Name: name, ValueType: ValueTypeUnknown}
	}
	switch v.Kind {
	case KindReal:
		return Property{Name: name, Value: v.Real, ValueType: ValueTypeDouble, Unit: unit}
	case KindInt:
		return Property{Name: name, Value: float64(v.Int), ValueType: ValueTypeDouble, Unit: unit}
	}
	return Property{Name: name, ValueType: ValueTypeUnknown, Unit: unit}
}

// scalarValue maps a STEP attribute to a JSON value and taxonomy type.
// Typed wrappers (IFCLABEL, measures) decide the type; bare literals fall
// back to their token kind.
func scalarValue(v Value) (any, string) {
	if v.Kind == KindTyped {
		inner := Value{Kind: KindNull}
		if len(v.List) > 0 {
			inner = v.List[0]
		}
		switch {
		case v.TypeName == "IFCLABEL" || v.TypeName == "IFCTEXT" || v.TypeName == "IFCIDENTIFIER":
			return inner.Str, ValueTypeString
		case v.TypeName == "IFCINTEGER" || v.TypeName == "IFCCOUNTMEASURE":
			if inner.Kind == KindReal {
				return int64(inner.Real), ValueTypeInteger
			}
			return inner.Int, ValueTypeInteger
		case v.TypeName == "IFCBOOLEAN" || v.TypeName == "IFCLOGICAL":
			return logicalValue(inner), ValueTypeBoolean
		case v.TypeName == "IFCREAL" || strings.HasSuffix(v.TypeName, "MEASURE"):
			if inner.Kind == KindInt {
				return float64(inner.Int), ValueTypeDouble
			}
			return inner.Real, ValueTypeDouble
		default:
			return scalarLiteral(inner)
		}
	}
	return scalarLiteral(v)
}

// logicalValue maps .T./.F./.U. enumerations to a JSON boolean; UNKNOWN
// becomes null.
func logicalValue(v Value) any {
	if v.Kind != KindEnum {
		return nil
	}
	switch v.Str {
	case "T", "TRUE":
		return true
	case "F", "FALSE":
		return false
	}
	return nil
}

func scalarLiteral(v Value) (any, string) {
	switch v.Kind {
	case KindString:
		return v.Str, ValueTypeString
	case KindInt:
		return v.Int, ValueTypeInteger
	case KindReal:
		return v.Real, ValueTypeDouble
	case KindEnum:
		switch v.Str {
		case "T", "TRUE":
			return true, ValueTypeBoolean
		case "F", "FALSE":
			return false, ValueTypeBoolean
		case "U", "UNKNOWN":
			return nil, ValueTypeBoolean
		}
		return v.Str, ValueTypeEnumeration
	}
	return nil, ValueTypeUnknown
}
