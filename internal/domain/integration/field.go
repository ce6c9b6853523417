package integration

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Field categories and values
// ---------------------------------------------------------------------------

// EntityType identifies the kind of synced record
type EntityType string

const (
	EntityTypeOrder   EntityType = "order"
	EntityTypeProduct EntityType = "product"
)

// IsValid returns true if the entity type is known
func (t EntityType) IsValid() bool {
	return t == EntityTypeOrder || t == EntityTypeProduct
}

// FieldCategory determines which origin is authoritative for a field
type FieldCategory string

const (
	// CategoryCommerce is owned by the storefronts: pricing, customer, address
	CategoryCommerce FieldCategory = "commerce"
	// CategoryOps is owned by internal operations: fulfillment state, carrier, notes
	CategoryOps FieldCategory = "ops"
	// CategoryStock is owned by the warehouse and operations: available quantity
	CategoryStock FieldCategory = "stock"
	// CategoryShared has no fixed authority
	CategoryShared FieldCategory = "shared"
)

// Field names a synced attribute of an order or product
type Field string

// Order fields
const (
	FieldCustomerName     Field = "customer_name"
	FieldCustomerEmail    Field = "customer_email"
	FieldShippingAddress  Field = "shipping_address"
	FieldTotalAmount      Field = "total_amount"
	FieldCurrency         Field = "currency"
	FieldShippingMethod   Field = "shipping_method"
	FieldFulfillmentState Field = "fulfillment_state"
	FieldCarrier          Field = "carrier"
	FieldTrackingNumber   Field = "tracking_number"
	FieldInternalNotes    Field = "internal_notes"
	FieldPriority         Field = "priority"
	FieldTags             Field = "tags"
)

// Product fields
const (
	FieldName              Field = "name"
	FieldDescription       Field = "description"
	FieldPrice             Field = "price"
	FieldAvailableQuantity Field = "available_quantity"
	FieldWeightGrams       Field = "weight_grams"
	FieldBarcode           Field = "barcode"
)

// ValueKind is the type tag of a FieldValue
type ValueKind string

const (
	KindString  ValueKind = "string"
	KindDecimal ValueKind = "decimal"
	KindInt     ValueKind = "int"
	KindList    ValueKind = "list"
)

// FieldValue is a typed field value. Exactly one payload member is meaningful, selected by Kind.
type FieldValue struct {
	Kind ValueKind       `json:"kind"`
	Str  string          `json:"str,omitempty"`
	Dec  decimal.Decimal `json:"dec"`
	Int  int64           `json:"int,omitempty"`
	List []string        `json:"list,omitempty"`
}

// StringValue wraps a string
func StringValue(s string) FieldValue {
	return FieldValue{Kind: KindString, Str: s}
}

// DecimalValue wraps a decimal amount
func DecimalValue(d decimal.Decimal) FieldValue {
	return FieldValue{Kind: KindDecimal, Dec: d}
}

// IntValue wraps an integer
func IntValue(i int64) FieldValue {
	return FieldValue{Kind: KindInt, Int: i}
}

// ListValue wraps a list of strings
func ListValue(items []string) FieldValue {
	cp := make([]string, len(items))
	copy(cp, items)
	return FieldValue{Kind: KindList, List: cp}
}

// Equal compares two values of the same kind
func (v FieldValue) Equal(other FieldValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindDecimal:
		return v.Dec.Equal(other.Dec)
	case KindInt:
		return v.Int == other.Int
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != other.List[i] {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value for logs and operator screens
func (v FieldValue) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindDecimal:
		return v.Dec.String()
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindList:
		return strings.Join(v.List, ",")
	}
	return ""
}

// FieldUpdate records the most recent writer of a field
type FieldUpdate struct {
	Origin Origin    `json:"origin"`
	At     time.Time `json:"at"`
}

// FieldDelta is one changed field in an audit record
type FieldDelta struct {
	Field  Field      `json:"field"`
	Before FieldValue `json:"before"`
	After  FieldValue `json:"after"`
}

// Syncable is an entity whose fields are jointly owned and resolved per field.
// Orders and products implement it through their static field tables.
type Syncable interface {
	SyncEntityType() EntityType
	SyncEntityID() string
	FieldCategory(f Field) (FieldCategory, bool)
	GetField(f Field) (FieldValue, error)
	SetField(f Field, v FieldValue) error
	LastUpdate(f Field) (FieldUpdate, bool)
	RecordUpdate(f Field, u FieldUpdate)
}

// fieldSpec binds a field to its category and typed accessors
type fieldSpec[E any] struct {
	category FieldCategory
	kind     ValueKind
	get      func(E) FieldValue
	set      func(E, FieldValue)
}

// fieldTable is the closed set of fields for one entity type
type fieldTable[E any] map[Field]fieldSpec[E]

func (t fieldTable[E]) category(f Field) (FieldCategory, bool) {
	spec, ok := t[f]
	if !ok {
		return "", false
	}
	return spec.category, true
}

func (t fieldTable[E]) get(e E, f Field) (FieldValue, error) {
	spec, ok := t[f]
	if !ok {
		return FieldValue{}, ErrUnknownField
	}
	return spec.get(e), nil
}

func (t fieldTable[E]) set(e E, f Field, v FieldValue) error {
	spec, ok := t[f]
	if !ok {
		return ErrUnknownField
	}
	if v.Kind != spec.kind {
		return ErrFieldKindMismatch
	}
	spec.set(e, v)
	return nil
}

// fieldsOf returns the fields of a table in the given category
func (t fieldTable[E]) fieldsOf(category FieldCategory) []Field {
	fields := make([]Field, 0)
	for f, spec := range t {
		if spec.category == category {
			fields = append(fields, f)
		}
	}
	return fields
}

// FieldsInCategory lists the fields of an entity type that belong to a category
func FieldsInCategory(entityType EntityType, category FieldCategory) []Field {
	switch entityType {
	case EntityTypeOrder:
		return orderFields.fieldsOf(category)
	case EntityTypeProduct:
		return productFields.fieldsOf(category)
	}
	return nil
}

// CategoryOf returns the category of a field for an entity type
func CategoryOf(entityType EntityType, f Field) (FieldCategory, bool) {
	switch entityType {
	case EntityTypeOrder:
		return orderFields.category(f)
	case EntityTypeProduct:
		return productFields.category(f)
	}
	return "", false
}

// KindOf returns the value kind a field expects
func KindOf(entityType EntityType, f Field) (ValueKind, bool) {
	switch entityType {
	case EntityTypeOrder:
		spec, ok := orderFields[f]
		return spec.kind, ok
	case EntityTypeProduct:
		spec, ok := productFields[f]
		return spec.kind, ok
	}
	return "", false
}
