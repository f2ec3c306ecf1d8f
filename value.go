package dataset

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ValueType is the tag of a Value.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt
	TypeDouble
	TypeString
	TypeBlob
	TypeTimestamp
	TypeGeoPoint
	TypeKey
	TypeEntity
	TypeList
)

var valueTypeNames = [...]string{
	TypeNull:      "null",
	TypeBool:      "bool",
	TypeInt:       "int",
	TypeDouble:    "double",
	TypeString:    "string",
	TypeBlob:      "blob",
	TypeTimestamp: "timestamp",
	TypeGeoPoint:  "geopoint",
	TypeKey:       "key",
	TypeEntity:    "entity",
	TypeList:      "list",
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(valueTypeNames) {
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
	return valueTypeNames[t]
}

// GeoPoint is a latitude and longitude pair in degrees.
type GeoPoint struct {
	Lat, Lng float64
}

// Value is a property value. The zero Value is null.
type Value struct {
	typ    ValueType
	b      bool
	i      int64
	f      float64
	s      string
	blob   []byte
	t      time.Time
	geo    GeoPoint
	key    *Key
	entity *Entity
	list   []Value
}

func NullValue() Value                { return Value{} }
func BoolValue(b bool) Value          { return Value{typ: TypeBool, b: b} }
func IntValue(i int64) Value          { return Value{typ: TypeInt, i: i} }
func DoubleValue(f float64) Value     { return Value{typ: TypeDouble, f: f} }
func StringValue(s string) Value      { return Value{typ: TypeString, s: s} }
func BlobValue(b []byte) Value        { return Value{typ: TypeBlob, blob: b} }
func TimeValue(t time.Time) Value     { return Value{typ: TypeTimestamp, t: t} }
func GeoPointValue(g GeoPoint) Value  { return Value{typ: TypeGeoPoint, geo: g} }
func KeyValue(k *Key) Value           { return Value{typ: TypeKey, key: k} }
func EntityValue(e *Entity) Value     { return Value{typ: TypeEntity, entity: e} }
func ListValue(values ...Value) Value { return Value{typ: TypeList, list: values} }

// ValueOf converts a native Go value into a Value.
func ValueOf(v interface{}) (Value, error) {
	switch v := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return v, nil
	case bool:
		return BoolValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case int8:
		return IntValue(int64(v)), nil
	case int16:
		return IntValue(int64(v)), nil
	case int32:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint8:
		return IntValue(int64(v)), nil
	case uint16:
		return IntValue(int64(v)), nil
	case uint32:
		return IntValue(int64(v)), nil
	case float32:
		return DoubleValue(float64(v)), nil
	case float64:
		return DoubleValue(v), nil
	case string:
		return StringValue(v), nil
	case []byte:
		return BlobValue(v), nil
	case time.Time:
		return TimeValue(v), nil
	case GeoPoint:
		return GeoPointValue(v), nil
	case *Key:
		if v == nil {
			return NullValue(), nil
		}
		return KeyValue(v), nil
	case *Entity:
		if v == nil {
			return NullValue(), nil
		}
		return EntityValue(v), nil
	case []Value:
		return ListValue(v...), nil
	case []interface{}:
		list := make([]Value, 0, len(v))
		for idx, elem := range v {
			ev, err := ValueOf(elem)
			if err != nil {
				return Value{}, errors.Wrapf(err, "element %d", idx)
			}
			list = append(list, ev)
		}
		return ListValue(list...), nil
	case []string:
		list := make([]Value, 0, len(v))
		for _, s := range v {
			list = append(list, StringValue(s))
		}
		return ListValue(list...), nil
	case []int64:
		list := make([]Value, 0, len(v))
		for _, i := range v {
			list = append(list, IntValue(i))
		}
		return ListValue(list...), nil
	}

	return Value{}, invalidArgumentf("unsupported value type %T", v)
}

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsNull() bool    { return v.typ == TypeNull }

func (v Value) Bool() bool         { return v.b }
func (v Value) Int() int64         { return v.i }
func (v Value) Double() float64    { return v.f }
func (v Value) Blob() []byte       { return v.blob }
func (v Value) Time() time.Time    { return v.t }
func (v Value) GeoPoint() GeoPoint { return v.geo }
func (v Value) Key() *Key          { return v.key }
func (v Value) Entity() *Entity    { return v.entity }
func (v Value) List() []Value      { return v.list }

// String returns the string payload of a TypeString value, and a printable
// form of the value otherwise.
func (v Value) String() string {
	if v.typ == TypeString {
		return v.s
	}
	return fmt.Sprint(v.Interface())
}

// Interface returns the payload as a native Go value.
func (v Value) Interface() interface{} {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	case TypeDouble:
		return v.f
	case TypeString:
		return v.s
	case TypeBlob:
		return v.blob
	case TypeTimestamp:
		return v.t
	case TypeGeoPoint:
		return v.geo
	case TypeKey:
		return v.key
	case TypeEntity:
		return v.entity
	case TypeList:
		list := make([]interface{}, 0, len(v.list))
		for _, elem := range v.list {
			list = append(list, elem.Interface())
		}
		return list
	}
	return nil
}
