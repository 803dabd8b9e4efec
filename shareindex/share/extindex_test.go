package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtIndexCandidateBitmapAndContains(t *testing.T) {
	x := NewExtIndex()
	mp3 := &File{Name: "song.mp3"}
	txt := &File{Name: "notes.txt"}
	x.Add(mp3)
	x.Add(txt)

	bm := x.CandidateBitmap([]string{"mp3"})
	assert.True(t, x.Contains(mp3, bm))
	assert.False(t, x.Contains(txt, bm))

	both := x.CandidateBitmap([]string{"mp3", "txt"})
	assert.True(t, x.Contains(mp3, both))
	assert.True(t, x.Contains(txt, both))
}

func TestExtIndexRemove(t *testing.T) {
	x := NewExtIndex()
	f := &File{Name: "a.zip"}
	x.Add(f)
	x.Remove(f)
	assert.False(t, x.Contains(f, x.CandidateBitmap([]string{"zip"})))
}

func TestExtIndexClear(t *testing.T) {
	x := NewExtIndex()
	f := &File{Name: "a.zip"}
	x.Add(f)
	x.Clear()
	assert.False(t, x.Contains(f, x.CandidateBitmap([]string{"zip"})))
}

func TestExtIndexCandidateBitmapEmptyList(t *testing.T) {
	x := NewExtIndex()
	f := &File{Name: "a.zip"}
	x.Add(f)
	assert.False(t, x.Contains(f, x.CandidateBitmap(nil)))
}
