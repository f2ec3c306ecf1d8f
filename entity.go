package dataset

var _ KeyHolder = (*Entity)(nil)

// Entity is a key and an ordered bag of properties.
// No schema is enforced locally.
type Entity struct {
	key      *Key
	names    []string
	props    map[string]Value
	excluded map[string]bool
}

// NewEntity returns an empty entity with key.
func NewEntity(key *Key) *Entity {
	return &Entity{
		key:      key,
		props:    make(map[string]Value),
		excluded: make(map[string]bool),
	}
}

func (e *Entity) DatastoreKey() *Key {
	if e == nil {
		return nil
	}
	return e.key
}

func (e *Entity) Key() *Key {
	return e.key
}

func (e *Entity) SetKey(key *Key) {
	e.key = key
}

// Persisted reports whether the entity's key came back from the service.
func (e *Entity) Persisted() bool {
	return e.key.Frozen()
}

func (e *Entity) Get(name string) (Value, bool) {
	v, ok := e.props[name]
	return v, ok
}

func (e *Entity) Set(name string, v Value) {
	if e.props == nil {
		e.props = make(map[string]Value)
	}
	if _, ok := e.props[name]; !ok {
		e.names = append(e.names, name)
	}
	e.props[name] = v
}

// SetValue converts v with ValueOf and sets it.
func (e *Entity) SetValue(name string, v interface{}) error {
	value, err := ValueOf(v)
	if err != nil {
		return err
	}
	e.Set(name, value)
	return nil
}

func (e *Entity) Delete(name string) {
	if _, ok := e.props[name]; !ok {
		return
	}
	delete(e.props, name)
	delete(e.excluded, name)
	for idx, n := range e.names {
		if n == name {
			e.names = append(e.names[:idx], e.names[idx+1:]...)
			break
		}
	}
}

// Names returns the property names in insertion order.
func (e *Entity) Names() []string {
	return append([]string(nil), e.names...)
}

func (e *Entity) Len() int {
	return len(e.names)
}

// Exclude marks name as excluded from indexes.
func (e *Entity) Exclude(name string, exclude bool) {
	if e.excluded == nil {
		e.excluded = make(map[string]bool)
	}
	if exclude {
		e.excluded[name] = true
		return
	}
	delete(e.excluded, name)
}

func (e *Entity) Excluded(name string) bool {
	return e.excluded[name]
}

// ExcludedNames returns the excluded property names in insertion order.
func (e *Entity) ExcludedNames() []string {
	var names []string
	for _, name := range e.names {
		if e.excluded[name] {
			names = append(names, name)
		}
	}
	return names
}
