package ifc

import (
	"strings"
	"testing"
	"time"
)

func findProperty(t *testing.T, props []Property, name string) Property {
	t.Helper()
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("Property %q not found in %+v", name, props)
	return Property{}
}

func TestExtractDocument(t *testing.T) {
	doc := Extract(decodeFixture(t))

	if doc.SchemaVersion != DocumentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", DocumentSchemaVersion, doc.SchemaVersion)
	}
	if doc.ExtractedAt.IsZero() || doc.ExtractedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("Unexpected extraction timestamp: %v", doc.ExtractedAt)
	}
	if doc.TotalElements != 2 || len(doc.Elements) != 2 {
		t.Fatalf("Expected 2 elements, got %d", doc.TotalElements)
	}

	// Elements come out in entity label order.
	if doc.Elements[0].EntityLabel != 1 || doc.Elements[1].EntityLabel != 2 {
		t.Errorf("Elements out of order: %d, %d",
			doc.Elements[0].EntityLabel, doc.Elements[1].EntityLabel)
	}
}

func TestExtractWallElement(t *testing.T) {
	doc := Extract(decodeFixture(t))
	wall := doc.Elements[0]

	if wall.GlobalID != "2O2Fr$t4X7Zf8NOew3FLOH" {
		t.Errorf("Unexpected GlobalId: %q", wall.GlobalID)
	}
	if wall.Name != "Basic Wall" || wall.TypeName != "IFCWALL" || wall.ObjectType != "Wall-Ext" {
		t.Errorf("Unexpected identity: %+v", wall)
	}

	if len(wall.PropertySets) != 1 {
		t.Fatalf("Expected 1 property set, got %d", len(wall.PropertySets))
	}
	pset := wall.PropertySets[0]
	if pset.Name != "Pset_WallCommon" || pset.IsTypeProperty {
		t.Errorf("Unexpected property set: %+v", pset)
	}

	ext := findProperty(t, pset.Properties, "IsExternal")
	if ext.Value != true || ext.ValueType != ValueTypeBoolean {
		t.Errorf("Unexpected IsExternal: %+v", ext)
	}
	fire := findProperty(t, pset.Properties, "FireRating")
	if fire.Value != "REI 120" || fire.ValueType != ValueTypeString {
		t.Errorf("Unexpected FireRating: %+v", fire)
	}
	width := findProperty(t, pset.Properties, "Width")
	if width.Value != 0.3 || width.ValueType != ValueTypeDouble {
		t.Errorf("Unexpected Width: %+v", width)
	}
}

func TestExtractQuantities(t *testing.T) {
	doc := Extract(decodeFixture(t))
	wall := doc.Elements[0]

	if len(wall.QuantitySets) != 1 {
		t.Fatalf("Expected 1 quantity set, got %d", len(wall.QuantitySets))
	}
	qset := wall.QuantitySets[0]
	if qset.Name != "Qto_WallBaseQuantities" {
		t.Errorf("Unexpected quantity set name: %q", qset.Name)
	}

	length := findProperty(t, qset.Quantities, "Length")
	if length.Value != 5.0 || length.ValueType != ValueTypeDouble || length.Unit != "m" {
		t.Errorf("Unexpected Length: %+v", length)
	}
	area := findProperty(t, qset.Quantities, "NetSideArea")
	if area.Value != 12.5 || area.Unit != "m2" {
		t.Errorf("Unexpected NetSideArea: %+v", area)
	}

	// Counts are integers without a unit.
	count := findProperty(t, qset.Quantities, "OpeningCount")
	if count.Value != int64(2) || count.ValueType != ValueTypeInteger || count.Unit != "" {
		t.Errorf("Unexpected OpeningCount: %+v", count)
	}
}

func TestExtractTypeProperties(t *testing.T) {
	doc := Extract(decodeFixture(t))
	wall := doc.Elements[0]

	if wall.TypeObjectName != "Generic Wall Type" {
		t.Errorf("Unexpected type object name: %q", wall.TypeObjectName)
	}
	if wall.TypeObjectType != "PartitionWall" {
		t.Errorf("Unexpected type object type: %q", wall.TypeObjectType)
	}
	if len(wall.TypePropertySets) != 1 {
		t.Fatalf("Expected 1 type property set, got %d", len(wall.TypePropertySets))
	}
	tpset := wall.TypePropertySets[0]
	if !tpset.IsTypeProperty {
		t.Error("Expected IsTypeProperty on a type pset")
	}
	ref := findProperty(t, tpset.Properties, "Reference")
	if ref.Value != "W-01" || ref.ValueType != ValueTypeString {
		t.Errorf("Unexpected Reference: %+v", ref)
	}
}

func TestExtractElementWithoutPsets(t *testing.T) {
	doc := Extract(decodeFixture(t))
	door := doc.Elements[1]

	if door.Name != "Front Door" || door.TypeName != "IFCDOOR" {
		t.Errorf("Unexpected door: %+v", door)
	}
	// Empty collections marshal as [], not null.
	if door.PropertySets == nil || door.QuantitySets == nil || door.TypePropertySets == nil {
		t.Error("Expected empty, non-nil collections")
	}
	if len(door.PropertySets) != 0 {
		t.Errorf("Expected no property sets, got %d", len(door.PropertySets))
	}
}

func TestExtractSpatialAndFlowTypes(t *testing.T) {
	src := `ISO-10303-21;
DATA;
#1=IFCBUILDINGSTOREY('st',$,'Level 1',$,$,$,$,$,$,0.);
#2=IFCFLOWSEGMENT('fs',$,'Duct',$,$,$,$,$);
#3=IFCCARTESIANPOINT((0.,0.,0.));
ENDSEC;
END-ISO-10303-21;
`
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	doc := Extract(m)
	if doc.TotalElements != 2 {
		t.Fatalf("Expected storey and flow segment only, got %d elements", doc.TotalElements)
	}
	if doc.Elements[0].TypeName != "IFCBUILDINGSTOREY" || doc.Elements[1].TypeName != "IFCFLOWSEGMENT" {
		t.Errorf("Unexpected element types: %s, %s",
			doc.Elements[0].TypeName, doc.Elements[1].TypeName)
	}
}
