package dataset

import (
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	pb "google.golang.org/genproto/googleapis/datastore/v1"
)

func TestEntity_ProtoRoundTrip(t *testing.T) {
	now := time.Date(2018, 4, 1, 12, 30, 0, 0, time.UTC)

	e := NewEntity(NameKey("Task", "sampleTask", nil))
	e.Set("description", StringValue("Learn Cloud Datastore"))
	e.Set("done", BoolValue(false))
	e.Set("priority", IntValue(4))
	e.Set("percent", DoubleValue(0.5))
	e.Set("created", TimeValue(now))
	e.Set("location", GeoPointValue(GeoPoint{Lat: 35.6, Lng: 139.7}))
	e.Set("owner", KeyValue(NameKey("User", "alice", nil)))
	e.Set("tags", ListValue(StringValue("a"), StringValue("b")))
	e.Set("nothing", NullValue())
	e.Set("raw", BlobValue([]byte("bytes")))
	e.Exclude("description", true)

	pe, err := toProtoEntity(e)
	if err != nil {
		t.Fatal(err)
	}
	if v := len(pe.Properties); v != 10 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := pe.Properties["description"].ExcludeFromIndexes; !v {
		t.Errorf("unexpected: %v", v)
	}
	if v := pe.Properties["done"].ExcludeFromIndexes; v {
		t.Errorf("unexpected: %v", v)
	}

	decoded := fromProtoEntity(pe)
	if !decoded.Key().Equal(e.Key()) {
		t.Errorf("unexpected: %v", decoded.Key())
	}
	if !decoded.Persisted() {
		t.Error("unexpected: not persisted")
	}
	if v, _ := decoded.Get("description"); v.String() != "Learn Cloud Datastore" {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("priority"); v.Int() != 4 {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("created"); !v.Time().Equal(now) {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("location"); v.GeoPoint() != (GeoPoint{Lat: 35.6, Lng: 139.7}) {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("owner"); v.Key().Name() != "alice" || !v.Key().Frozen() {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("tags"); len(v.List()) != 2 || v.List()[1].String() != "b" {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("nothing"); !v.IsNull() {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := decoded.Get("raw"); string(v.Blob()) != "bytes" {
		t.Errorf("unexpected: %v", v)
	}
	if v := decoded.ExcludedNames(); len(v) != 1 || v[0] != "description" {
		t.Errorf("unexpected: %v", v)
	}
}

func TestEntity_ExcludedList(t *testing.T) {
	e := NewEntity(IDKey("Task", 1, nil))
	e.Set("tags", ListValue(StringValue("a"), StringValue("b")))
	e.Exclude("tags", true)

	pe, err := toProtoEntity(e)
	if err != nil {
		t.Fatal(err)
	}
	pv := pe.Properties["tags"]
	if pv.ExcludeFromIndexes {
		t.Error("unexpected: list value excluded")
	}
	for idx, elem := range pv.GetArrayValue().GetValues() {
		if !elem.ExcludeFromIndexes {
			t.Errorf("#%d unexpected: not excluded", idx)
		}
	}

	decoded := fromProtoEntity(pe)
	if !decoded.Excluded("tags") {
		t.Error("unexpected: not excluded")
	}
}

func TestEntity_EmbeddedEntity(t *testing.T) {
	inner := NewEntity(nil)
	inner.Set("street", StringValue("Roppongi"))

	e := NewEntity(IDKey("User", 1, nil))
	e.Set("address", EntityValue(inner))

	pe, err := toProtoEntity(e)
	if err != nil {
		t.Fatal(err)
	}
	expected := &pb.Value{
		ValueType: &pb.Value_EntityValue{
			EntityValue: &pb.Entity{
				Properties: map[string]*pb.Value{
					"street": {ValueType: &pb.Value_StringValue{StringValue: "Roppongi"}},
				},
			},
		},
	}
	if v := pe.Properties["address"]; !proto.Equal(v, expected) {
		t.Errorf("unexpected: %v", v)
	}

	decoded := fromProtoEntity(pe)
	v, ok := decoded.Get("address")
	if !ok {
		t.Fatal("unexpected: missing")
	}
	if s, _ := v.Entity().Get("street"); s.String() != "Roppongi" {
		t.Errorf("unexpected: %v", s)
	}
}

func TestEntity_Properties(t *testing.T) {
	e := NewEntity(IncompleteKey("Task", nil))
	e.Set("b", IntValue(1))
	e.Set("a", IntValue(2))
	e.Set("b", IntValue(3))

	if v := e.Names(); len(v) != 2 || v[0] != "b" || v[1] != "a" {
		t.Errorf("unexpected: %v", v)
	}
	if v, _ := e.Get("b"); v.Int() != 3 {
		t.Errorf("unexpected: %v", v)
	}
	if e.Persisted() {
		t.Error("unexpected: persisted")
	}

	e.Exclude("a", true)
	e.Delete("a")
	if v := e.Len(); v != 1 {
		t.Errorf("unexpected: %v", v)
	}
	if e.Excluded("a") {
		t.Error("unexpected: excluded")
	}

	if err := e.SetValue("list", []interface{}{"x", 1, true}); err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get("list"); v.Type() != TypeList || v.List()[1].Int() != 1 {
		t.Errorf("unexpected: %v", v)
	}
	if err := e.SetValue("bad", struct{}{}); errors.Cause(err) != ErrInvalidArgument {
		t.Errorf("unexpected: %v", err)
	}
}

func TestValueOf(t *testing.T) {
	cases := []struct {
		in  interface{}
		typ ValueType
	}{
		{nil, TypeNull},
		{true, TypeBool},
		{42, TypeInt},
		{int64(42), TypeInt},
		{uint32(42), TypeInt},
		{1.5, TypeDouble},
		{"s", TypeString},
		{[]byte("b"), TypeBlob},
		{time.Now(), TypeTimestamp},
		{GeoPoint{}, TypeGeoPoint},
		{NewKey("Task", 1), TypeKey},
		{(*Key)(nil), TypeNull},
		{NewEntity(nil), TypeEntity},
		{[]string{"a"}, TypeList},
		{[]int64{1}, TypeList},
		{IntValue(1), TypeInt},
	}
	for idx, c := range cases {
		v, err := ValueOf(c.in)
		if err != nil {
			t.Fatalf("#%d unexpected: %v", idx, err)
		}
		if v.Type() != c.typ {
			t.Errorf("#%d unexpected: %v", idx, v.Type())
		}
	}

	if _, err := ValueOf(map[string]int{}); err == nil {
		t.Error("unexpected: nil error")
	}
}

func TestKey_ToProtoWithoutPartition(t *testing.T) {
	pKey := toProtoKey(IncompleteKey("Task", nil))

	if pKey.PartitionId != nil {
		t.Errorf("unexpected: %v", pKey.PartitionId)
	}
	if v := len(pKey.Path); v != 1 {
		t.Fatalf("unexpected: %v", v)
	}
	if v := pKey.Path[0].IdType; v != nil {
		t.Errorf("unexpected: %v", v)
	}
}
