package dataset

import (
	"cloud.google.com/go/datastore"
)

var _ KeyHolder = (*Key)(nil)

// KeyHolder is anything that can be resolved to a Key.
// Both *Key and *Entity satisfy it.
type KeyHolder interface {
	DatastoreKey() *Key
}

// PathElement is one (kind, id or name) pair of a key path.
type PathElement struct {
	Kind string
	ID   int64
	Name string
}

// Key identifies an entity by kind and id or name, an optional ancestor
// chain and an optional partition (project id and namespace).
//
// At most one of id and name is set. Keys read from the service are frozen
// and every setter on them returns ErrKeyFrozen.
type Key struct {
	kind      string
	id        int64
	name      string
	parent    *Key
	projectID string
	namespace string

	frozen bool
}

// NewKey returns a key of kind. idOrName may be an integer (id) or a string
// (name). Any other value leaves the key incomplete.
func NewKey(kind string, idOrName interface{}) *Key {
	k := &Key{kind: kind}
	switch v := idOrName.(type) {
	case int:
		k.id = int64(v)
	case int32:
		k.id = int64(v)
	case int64:
		k.id = v
	case string:
		k.name = v
	}
	return k
}

// IDKey returns a key with a numeric id.
func IDKey(kind string, id int64, parent *Key) *Key {
	return &Key{kind: kind, id: id, parent: parent}
}

// NameKey returns a key with a string name.
func NameKey(kind, name string, parent *Key) *Key {
	return &Key{kind: kind, name: name, parent: parent}
}

// IncompleteKey returns a key without id or name. The service assigns an id
// when an entity with this key is saved.
func IncompleteKey(kind string, parent *Key) *Key {
	return &Key{kind: kind, parent: parent}
}

func (k *Key) DatastoreKey() *Key {
	return k
}

func (k *Key) Kind() string {
	if k == nil {
		return ""
	}
	return k.kind
}

func (k *Key) SetKind(kind string) error {
	if k.frozen {
		return ErrKeyFrozen
	}
	k.kind = kind
	return nil
}

func (k *Key) ID() int64 {
	if k == nil {
		return 0
	}
	return k.id
}

// SetID sets the numeric id and clears the name.
func (k *Key) SetID(id int64) error {
	if k.frozen {
		return ErrKeyFrozen
	}
	k.id = id
	k.name = ""
	return nil
}

func (k *Key) Name() string {
	if k == nil {
		return ""
	}
	return k.name
}

// SetName sets the string name and clears the id.
func (k *Key) SetName(name string) error {
	if k.frozen {
		return ErrKeyFrozen
	}
	k.name = name
	k.id = 0
	return nil
}

func (k *Key) Parent() *Key {
	if k == nil {
		return nil
	}
	return k.parent
}

// SetParent sets the ancestor. A nil holder clears it.
func (k *Key) SetParent(parent KeyHolder) error {
	if k.frozen {
		return ErrKeyFrozen
	}
	if parent == nil {
		k.parent = nil
		return nil
	}
	k.parent = parent.DatastoreKey()
	return nil
}

func (k *Key) ProjectID() string {
	if k == nil {
		return ""
	}
	return k.projectID
}

func (k *Key) SetProjectID(projectID string) error {
	if k.frozen {
		return ErrKeyFrozen
	}
	k.projectID = projectID
	return nil
}

func (k *Key) Namespace() string {
	if k == nil {
		return ""
	}
	return k.namespace
}

func (k *Key) SetNamespace(namespace string) error {
	if k.frozen {
		return ErrKeyFrozen
	}
	k.namespace = namespace
	return nil
}

// Complete reports whether the key has a kind and either an id or a name.
func (k *Key) Complete() bool {
	if k == nil || k.kind == "" {
		return false
	}
	return (k.id != 0) != (k.name != "")
}

func (k *Key) Incomplete() bool {
	return !k.Complete()
}

// Frozen reports whether the key was read from the service.
func (k *Key) Frozen() bool {
	return k != nil && k.frozen
}

// Path returns the (kind, id or name) pairs from the root ancestor down to k.
func (k *Key) Path() []PathElement {
	var path []PathElement
	for cur := k; cur != nil; cur = cur.parent {
		path = append(path, PathElement{Kind: cur.kind, ID: cur.id, Name: cur.name})
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Clone returns an unfrozen deep copy of k.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	c := *k
	c.frozen = false
	c.parent = k.parent.Clone()
	return &c
}

// Equal reports whether k and o have the same path and partition.
func (k *Key) Equal(o *Key) bool {
	for k != nil && o != nil {
		if k.kind != o.kind || k.id != o.id || k.name != o.name {
			return false
		}
		if k.projectID != o.projectID || k.namespace != o.namespace {
			return false
		}
		k, o = k.parent, o.parent
	}
	return k == nil && o == nil
}

// String returns the path of k in the form "/Kind,id/Kind,name".
func (k *Key) String() string {
	return toCloudKey(k).String()
}

// Encode returns an opaque URL-safe representation of k.
// The project id is not part of the encoding.
func (k *Key) Encode() string {
	return toCloudKey(k).Encode()
}

// DecodeKey decodes a key produced by Key.Encode.
func DecodeKey(encoded string) (*Key, error) {
	origKey, err := datastore.DecodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return fromCloudKey(origKey), nil
}

func (k *Key) freeze() *Key {
	for cur := k; cur != nil; cur = cur.parent {
		cur.frozen = true
	}
	return k
}

// toCloudKey copies the namespace of key onto every ancestor, as the cloud
// client expects the whole path to share one namespace.
func toCloudKey(key *Key) *datastore.Key {
	if key == nil {
		return nil
	}

	origKey := &datastore.Key{Kind: key.kind, ID: key.id, Name: key.name, Namespace: key.namespace}
	child := origKey
	for p := key.parent; p != nil; p = p.parent {
		child.Parent = &datastore.Key{Kind: p.kind, ID: p.id, Name: p.name, Namespace: key.namespace}
		child = child.Parent
	}
	return origKey
}

// fromCloudKey keeps the namespace on the outermost key only.
func fromCloudKey(key *datastore.Key) *Key {
	if key == nil {
		return nil
	}

	k := &Key{kind: key.Kind, id: key.ID, name: key.Name, namespace: key.Namespace}
	child := k
	for p := key.Parent; p != nil; p = p.Parent {
		child.parent = &Key{kind: p.Kind, id: p.ID, name: p.Name}
		child = child.parent
	}
	return k
}
