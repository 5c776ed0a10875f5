package hierarchy

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named interface{ Name() string }
type aged interface{ Age() int }
type person interface {
	named
	aged
}
type unrelated interface{ Nope() }

type employee struct{}

func (employee) Name() string { return "e" }
func (employee) Age() int     { return 40 }

type robot struct{}

func (robot) Name() string { return "r" }

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func TestInterfaces_Ancestors(t *testing.T) {
	r := NewInterfaces(typeOf[named](), typeOf[aged](), typeOf[unrelated]())

	got := r.Ancestors(typeOf[employee]())
	assert.Equal(t, []reflect.Type{typeOf[named](), typeOf[aged]()}, got)

	got = r.Ancestors(typeOf[robot]())
	assert.Equal(t, []reflect.Type{typeOf[named]()}, got)
}

func TestInterfaces_ExcludesSelf(t *testing.T) {
	r := NewInterfaces(typeOf[named](), typeOf[person]())

	got := r.Ancestors(typeOf[person]())
	assert.Equal(t, []reflect.Type{typeOf[named]()}, got)
}

func TestInterfaces_EmbeddedInterfacesAreTransitive(t *testing.T) {
	r := NewInterfaces(typeOf[person](), typeOf[named](), typeOf[aged]())

	got := r.Ancestors(typeOf[employee]())
	assert.ElementsMatch(t, []reflect.Type{typeOf[person](), typeOf[named](), typeOf[aged]()}, got)
	assert.Empty(t, r.Ancestors(typeOf[int]()))
}

func TestInterfaces_UniversalRootLast(t *testing.T) {
	r := NewInterfaces()
	r.Track(Any)
	r.Track(typeOf[named]())
	r.Track(typeOf[aged]())

	got := r.Ancestors(typeOf[employee]())
	require.Len(t, got, 3)
	assert.Equal(t, Any, got[2])

	assert.Equal(t, []reflect.Type{Any}, r.Ancestors(typeOf[int]()))
}

func TestInterfaces_Track(t *testing.T) {
	r := NewInterfaces()

	assert.True(t, r.Track(typeOf[named]()))
	assert.False(t, r.Track(typeOf[named]()), "duplicate")
	assert.False(t, r.Track(typeOf[employee]()), "not an interface")
	assert.False(t, r.Track(nil))
	assert.Len(t, r.Known(), 1)
	assert.Nil(t, r.Ancestors(nil))
}

func TestInterfaces_ConcurrentTrackAndResolve(t *testing.T) {
	r := NewInterfaces()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Track(typeOf[named]())
			r.Track(Any)
		}()
		go func() {
			defer wg.Done()
			_ = r.Ancestors(typeOf[employee]())
		}()
	}
	wg.Wait()
	assert.Equal(t, []reflect.Type{typeOf[named](), Any}, r.Known())
}

func TestCached_HitsAndInvalidation(t *testing.T) {
	inner := NewInterfaces(typeOf[named]())
	c, err := NewCached(inner, 8)
	require.NoError(t, err)

	first := c.Ancestors(typeOf[employee]())
	second := c.Ancestors(typeOf[employee]())
	assert.Equal(t, first, second)
	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	assert.True(t, c.Track(typeOf[aged]()))
	assert.Zero(t, c.Len())
	assert.Equal(t, []reflect.Type{typeOf[named](), typeOf[aged]()}, c.Ancestors(typeOf[employee]()))

	assert.False(t, c.Track(typeOf[aged]()))
}

type fixedResolver struct{}

func (fixedResolver) Ancestors(reflect.Type) []reflect.Type { return nil }

func TestCached_TrackWithoutTracker(t *testing.T) {
	c, err := NewCached(fixedResolver{}, 0)
	require.NoError(t, err)
	assert.False(t, c.Track(typeOf[named]()))
}

func TestCached_Eviction(t *testing.T) {
	c, err := NewCached(NewInterfaces(Any), 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		c.Ancestors(reflect.ArrayOf(i+1, typeOf[int]()))
	}
	assert.Equal(t, 2, c.Len())
}

func ExampleInterfaces() {
	r := NewInterfaces(typeOf[named](), typeOf[unrelated]())
	fmt.Println(r.Ancestors(typeOf[robot]()))
	// Output: [hierarchy.named]
}
