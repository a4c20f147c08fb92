package dict

// GenHash is the djb2 hash: h = 5381; h = h*33 + c for every byte.
func GenHash(b []byte) uint32 {
	h := uint32(5381)
	for _, c := range b {
		h = h*33 + uint32(c)
	}
	return h
}

// GenHashString is GenHash over the bytes of s without copying.
func GenHashString(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// StringBehavior hashes string keys with GenHash and compares them
// byte-wise. OnRelease, when set, is called for every value leaving the
// table.
type StringBehavior[V any] struct {
	OnRelease func(V)
}

// Hash implements Behavior.
func (StringBehavior[V]) Hash(key string) uint32 { return GenHashString(key) }

// Equal implements Behavior.
func (StringBehavior[V]) Equal(a, b string) bool { return a == b }

// ReleaseKey implements Behavior.
func (StringBehavior[V]) ReleaseKey(string) {}

// ReleaseValue implements Behavior.
func (s StringBehavior[V]) ReleaseValue(v V) {
	if s.OnRelease != nil {
		s.OnRelease(v)
	}
}

// Funcs adapts plain functions to Behavior. Nil release functions are
// no-ops.
type Funcs[K, V any] struct {
	HashFunc         func(K) uint32
	EqualFunc        func(a, b K) bool
	ReleaseKeyFunc   func(K)
	ReleaseValueFunc func(V)
}

// Hash implements Behavior.
func (f Funcs[K, V]) Hash(key K) uint32 { return f.HashFunc(key) }

// Equal implements Behavior.
func (f Funcs[K, V]) Equal(a, b K) bool { return f.EqualFunc(a, b) }

// ReleaseKey implements Behavior.
func (f Funcs[K, V]) ReleaseKey(key K) {
	if f.ReleaseKeyFunc != nil {
		f.ReleaseKeyFunc(key)
	}
}

// ReleaseValue implements Behavior.
func (f Funcs[K, V]) ReleaseValue(v V) {
	if f.ReleaseValueFunc != nil {
		f.ReleaseValueFunc(v)
	}
}
