package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_ObserveSeqMonotonic(t *testing.T) {
	s := NewSession(0, 1)

	assert.True(t, s.ObserveSeq(5))
	assert.False(t, s.ObserveSeq(3), "older sequence must not advance")
	assert.False(t, s.ObserveSeq(5), "equal sequence must not advance")
	assert.True(t, s.ObserveSeq(6))

	seq, ok := s.Seq()
	assert.True(t, ok)
	assert.Equal(t, int64(6), seq)
}

func TestSession_Resumable(t *testing.T) {
	s := NewSession(2, 4)
	assert.False(t, s.Resumable(), "no id, no seq")

	s.SetID("abc")
	assert.False(t, s.Resumable(), "id alone is not enough")

	s.ObserveSeq(1)
	assert.True(t, s.Resumable())

	s.Invalidate()
	assert.False(t, s.Resumable())
	assert.Empty(t, s.ID())

	index, count := s.Shard()
	assert.Equal(t, 2, index)
	assert.Equal(t, 4, count)
}
