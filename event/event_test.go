package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynchronizableVocabulary(t *testing.T) {
	names := Synchronizable()
	assert.NotEmpty(t, names)
	assert.Equal(t, RunnerStart, names[0])
	assert.Equal(t, End, names[len(names)-1])

	// the returned slice is a copy
	names[0] = "mutated"
	assert.Equal(t, RunnerStart, Synchronizable()[0])

	assert.True(t, IsSynchronizable(TestPass))
	assert.True(t, IsSynchronizable(Err))
	assert.False(t, IsSynchronizable("adHoc"))
}
