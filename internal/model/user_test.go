package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Nick", TitleCase("nick"))
	assert.Equal(t, "Nick Smith", TitleCase("nick smith"))
	assert.Equal(t, "Nick Smith", TitleCase("  nick   smith "))
	assert.Equal(t, "", TitleCase(""))
}

func TestEffectiveDisplayName(t *testing.T) {
	assert.Equal(t, "Alice W", User{Username: "alice", DisplayName: "Alice W"}.EffectiveDisplayName())
	assert.Equal(t, "Alice", User{Username: "alice"}.EffectiveDisplayName())
}

func TestFindUser(t *testing.T) {
	users := []User{{Username: "alice"}, {Username: "bob"}}
	found, ok := FindUser(users, " Bob ")
	assert.True(t, ok)
	assert.Equal(t, "bob", found.Username)

	_, ok = FindUser(users, "carol")
	assert.False(t, ok)
	_, ok = FindUser(users, "")
	assert.False(t, ok)
}
