package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCasePolicyInsensitive(t *testing.T) {
	p := CaseInsensitive
	assert.True(t, p.Equal("Foo.txt", "foo.TXT"))
	assert.Equal(t, "foo.txt", p.Fold("Foo.TXT"))
	assert.True(t, p.Less("apple", "Banana"))
}

func TestCasePolicySensitive(t *testing.T) {
	p := CaseSensitive
	assert.False(t, p.Equal("Foo.txt", "foo.txt"))
	assert.Equal(t, "Foo.TXT", p.Fold("Foo.TXT"))
	assert.True(t, p.Less("Apple", "apple"))
}
