package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectPublishOrder(t *testing.T) {
	var s Subject[int]
	var got []string

	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })
	s.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSubjectCancel(t *testing.T) {
	var s Subject[string]
	var got []string

	cancelA := s.Subscribe(func(v string) { got = append(got, "a:"+v) })
	s.Subscribe(func(v string) { got = append(got, "b:"+v) })

	cancelA()
	cancelA()
	s.Publish("x")

	assert.Equal(t, []string{"b:x"}, got)
	assert.Equal(t, 1, s.Len())
}

func TestSubjectCancelDuringPublish(t *testing.T) {
	var s Subject[int]
	calls := 0

	var cancel func()
	cancel = s.Subscribe(func(int) {
		calls++
		cancel()
	})
	s.Subscribe(func(int) { calls++ })

	s.Publish(1)
	s.Publish(2)

	assert.Equal(t, 3, calls)
}

func TestSubjectClear(t *testing.T) {
	var s Subject[int]
	called := false
	s.Subscribe(func(int) { called = true })
	s.Clear()
	s.Publish(1)

	assert.False(t, called)
	assert.Equal(t, 0, s.Len())
}
