package voicechat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerConcatenatesFragments(t *testing.T) {
	var a turnAssembler
	a.addAssistant("Hel")
	a.addAssistant("lo, ")
	a.addAssistant("Maria!")

	turns := a.flush(time.Now())
	require.Len(t, turns, 1)
	assert.Equal(t, RoleAssistant, turns[0].Role)
	assert.Equal(t, "Hello, Maria!", turns[0].Text)
}

func TestAssemblerUserBeforeAssistant(t *testing.T) {
	var a turnAssembler
	// Fragments interleave within an exchange; order of arrival does not
	// change the flush ordering.
	a.addAssistant("Muy bien, gracias.")
	a.addUser("¿Cómo ")
	a.addUser("estás?")

	turns := a.flush(time.Now())
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "¿Cómo estás?", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "Muy bien, gracias.", turns[1].Text)
}

func TestAssemblerOmitsEmptySides(t *testing.T) {
	var a turnAssembler
	a.addAssistant("Solo yo hablo.")

	turns := a.flush(time.Now())
	require.Len(t, turns, 1)
	assert.Equal(t, RoleAssistant, turns[0].Role)

	// Nothing accumulated: nothing flushed.
	assert.Empty(t, a.flush(time.Now()))
}

func TestAssemblerResetsAfterFlush(t *testing.T) {
	var a turnAssembler
	a.addUser("primera")
	a.flush(time.Now())

	a.addUser("segunda")
	turns := a.flush(time.Now())
	require.Len(t, turns, 1)
	assert.Equal(t, "segunda", turns[0].Text)
}
