package tiercache

// Result is the outcome of a lookup that reached a source of truth, either
// directly or through the cache. Found=false means the key is confirmed
// absent, which is cached like any value. A cache miss is not a Result; Get
// reports it with ok=false.
type Result[V any] struct {
	Value V
	Found bool
}

// Present wraps v as a found Result.
func Present[V any](v V) Result[V] { return Result[V]{Value: v, Found: true} }

// Absent is the confirmed-negative Result.
func Absent[V any]() Result[V] { return Result[V]{} }
