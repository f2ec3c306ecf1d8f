package dataset

import (
	"sort"

	"github.com/pkg/errors"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// toProtoKey flattens the ancestor chain into a root-first path. The
// partition of the outermost key is the partition of the whole path.
func toProtoKey(key *Key) *pb.Key {
	if key == nil {
		return nil
	}

	path := make([]*pb.Key_PathElement, 0, 4)
	for _, elem := range key.Path() {
		pe := &pb.Key_PathElement{Kind: elem.Kind}
		if elem.ID != 0 {
			pe.IdType = &pb.Key_PathElement_Id{Id: elem.ID}
		} else if elem.Name != "" {
			pe.IdType = &pb.Key_PathElement_Name{Name: elem.Name}
		}
		path = append(path, pe)
	}

	pKey := &pb.Key{Path: path}
	if key.projectID != "" || key.namespace != "" {
		pKey.PartitionId = &pb.PartitionId{
			ProjectId:   key.projectID,
			NamespaceId: key.namespace,
		}
	}
	return pKey
}

func toProtoKeys(keys []*Key) []*pb.Key {
	if keys == nil {
		return nil
	}

	pKeys := make([]*pb.Key, len(keys))
	for idx, key := range keys {
		pKeys[idx] = toProtoKey(key)
	}
	return pKeys
}

// fromProtoKey rebuilds the ancestor chain. An empty path yields an empty Key.
// The result is not frozen.
func fromProtoKey(pKey *pb.Key) *Key {
	if pKey == nil {
		return nil
	}
	if len(pKey.Path) == 0 {
		return &Key{}
	}

	var key *Key
	for _, pe := range pKey.Path {
		key = &Key{
			kind:   pe.Kind,
			id:     pe.GetId(),
			name:   pe.GetName(),
			parent: key,
		}
	}
	if p := pKey.PartitionId; p != nil {
		key.projectID = p.ProjectId
		key.namespace = p.NamespaceId
	}
	return key
}

func fromProtoKeys(pKeys []*pb.Key) []*Key {
	if pKeys == nil {
		return nil
	}

	keys := make([]*Key, len(pKeys))
	for idx, pKey := range pKeys {
		keys[idx] = fromProtoKey(pKey).freeze()
	}
	return keys
}

func toProtoEntity(e *Entity) (*pb.Entity, error) {
	if e == nil {
		return nil, nil
	}

	pe := &pb.Entity{
		Key:        toProtoKey(e.key),
		Properties: make(map[string]*pb.Value, len(e.names)),
	}
	for _, name := range e.names {
		pv, err := toProtoValue(e.props[name])
		if err != nil {
			return nil, errors.Wrapf(err, "property %q", name)
		}
		if e.excluded[name] {
			excludeFromIndexes(pv)
		}
		pe.Properties[name] = pv
	}
	return pe, nil
}

// excludeFromIndexes puts the flag on the elements of a list value, where
// the service expects it, and on the value itself otherwise.
func excludeFromIndexes(pv *pb.Value) {
	if av := pv.GetArrayValue(); av != nil {
		for _, elem := range av.Values {
			elem.ExcludeFromIndexes = true
		}
		return
	}
	pv.ExcludeFromIndexes = true
}

// fromProtoEntity decodes an entity. Keys, including nested ones, are frozen.
func fromProtoEntity(pe *pb.Entity) *Entity {
	if pe == nil {
		return nil
	}

	e := NewEntity(fromProtoKey(pe.Key).freeze())
	for _, name := range sortedPropertyNames(pe.Properties) {
		pv := pe.Properties[name]
		e.Set(name, fromProtoValue(pv))
		if excludedOnWire(pv) {
			e.Exclude(name, true)
		}
	}
	return e
}

func sortedPropertyNames(props map[string]*pb.Value) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func excludedOnWire(pv *pb.Value) bool {
	if pv.ExcludeFromIndexes {
		return true
	}
	av := pv.GetArrayValue()
	if av == nil || len(av.Values) == 0 {
		return false
	}
	for _, elem := range av.Values {
		if !elem.ExcludeFromIndexes {
			return false
		}
	}
	return true
}

func toProtoValue(v Value) (*pb.Value, error) {
	pv := &pb.Value{}
	switch v.typ {
	case TypeNull:
		pv.ValueType = &pb.Value_NullValue{NullValue: structpb.NullValue_NULL_VALUE}
	case TypeBool:
		pv.ValueType = &pb.Value_BooleanValue{BooleanValue: v.b}
	case TypeInt:
		pv.ValueType = &pb.Value_IntegerValue{IntegerValue: v.i}
	case TypeDouble:
		pv.ValueType = &pb.Value_DoubleValue{DoubleValue: v.f}
	case TypeString:
		pv.ValueType = &pb.Value_StringValue{StringValue: v.s}
	case TypeBlob:
		pv.ValueType = &pb.Value_BlobValue{BlobValue: v.blob}
	case TypeTimestamp:
		pv.ValueType = &pb.Value_TimestampValue{TimestampValue: timestamppb.New(v.t)}
	case TypeGeoPoint:
		pv.ValueType = &pb.Value_GeoPointValue{GeoPointValue: &latlng.LatLng{Latitude: v.geo.Lat, Longitude: v.geo.Lng}}
	case TypeKey:
		pv.ValueType = &pb.Value_KeyValue{KeyValue: toProtoKey(v.key)}
	case TypeEntity:
		pe, err := toProtoEntity(v.entity)
		if err != nil {
			return nil, err
		}
		pv.ValueType = &pb.Value_EntityValue{EntityValue: pe}
	case TypeList:
		values := make([]*pb.Value, 0, len(v.list))
		for idx, elem := range v.list {
			pElem, err := toProtoValue(elem)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", idx)
			}
			values = append(values, pElem)
		}
		pv.ValueType = &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: values}}
	default:
		return nil, invalidArgumentf("unknown value type %v", v.typ)
	}
	return pv, nil
}

func fromProtoValue(pv *pb.Value) Value {
	switch t := pv.GetValueType().(type) {
	case *pb.Value_BooleanValue:
		return BoolValue(t.BooleanValue)
	case *pb.Value_IntegerValue:
		return IntValue(t.IntegerValue)
	case *pb.Value_DoubleValue:
		return DoubleValue(t.DoubleValue)
	case *pb.Value_StringValue:
		return StringValue(t.StringValue)
	case *pb.Value_BlobValue:
		return BlobValue(t.BlobValue)
	case *pb.Value_TimestampValue:
		return TimeValue(t.TimestampValue.AsTime())
	case *pb.Value_GeoPointValue:
		return GeoPointValue(GeoPoint{Lat: t.GeoPointValue.GetLatitude(), Lng: t.GeoPointValue.GetLongitude()})
	case *pb.Value_KeyValue:
		return KeyValue(fromProtoKey(t.KeyValue).freeze())
	case *pb.Value_EntityValue:
		return EntityValue(fromProtoEntity(t.EntityValue))
	case *pb.Value_ArrayValue:
		list := make([]Value, 0, len(t.ArrayValue.GetValues()))
		for _, elem := range t.ArrayValue.GetValues() {
			list = append(list, fromProtoValue(elem))
		}
		return ListValue(list...)
	}
	return NullValue()
}

// KeyFromProto decodes a wire key. The result is frozen.
func KeyFromProto(pKey *pb.Key) *Key {
	return fromProtoKey(pKey).freeze()
}

// KeyToProto encodes k in the wire format.
func KeyToProto(k *Key) *pb.Key {
	return toProtoKey(k)
}
