package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id string }

func (f *fakeConn) ID() string        { return f.id }
func (f *fakeConn) Send([]byte) bool { return true }
func (f *fakeConn) Close()            {}

func TestBindAndRemove(t *testing.T) {
	r := NewRegistry()
	phone, laptop := &fakeConn{"c1"}, &fakeConn{"c2"}

	r.Add(phone)
	r.Add(laptop)
	_, ok := r.Identity(phone)
	assert.False(t, ok)
	conns, ids := r.Count()
	assert.Equal(t, 2, conns)
	assert.Equal(t, 0, ids)

	r.Bind(phone, "alice")
	r.Bind(laptop, "alice")
	assert.True(t, r.Online("alice"))
	assert.Len(t, r.Sessions("alice"), 2)

	id, offline := r.Remove(phone)
	assert.Equal(t, "alice", id)
	assert.False(t, offline, "laptop still connected")

	id, offline = r.Remove(laptop)
	assert.Equal(t, "alice", id)
	assert.True(t, offline)
	assert.False(t, r.Online("alice"))
	assert.Empty(t, r.All())
}

func TestRemoveAnonymousAndUnknown(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{"c1"}
	r.Add(c)

	id, offline := r.Remove(c)
	assert.Empty(t, id)
	assert.False(t, offline)

	id, offline = r.Remove(c)
	assert.Empty(t, id)
	assert.False(t, offline)
}

func TestRebind(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{"c1"}
	r.Add(c)

	res := r.Bind(c, "alice")
	assert.Empty(t, res.Previous)

	res = r.Bind(c, "alice")
	assert.Empty(t, res.Previous, "same identity is a no-op")

	res = r.Bind(c, "bob")
	assert.Equal(t, "alice", res.Previous)
	assert.True(t, res.PreviousOffline)
	assert.False(t, r.Online("alice"))

	id, ok := r.Identity(c)
	require.True(t, ok)
	assert.Equal(t, "bob", id)
	assert.Len(t, r.Sessions("bob"), 1)
}
