package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceorb/playback"
	"voiceorb/stream"
)

type noDevice struct{}

func (noDevice) Acquire(string) (playback.Binding, error) { return nil, errors.New("no output") }
func (noDevice) NoteGesture()                             {}
func (noDevice) CanStream(string) bool                    { return true }

func TestAddAndResolve(t *testing.T) {
	h := New()
	_, idx := h.Current()
	assert.Equal(t, -1, idx)
	assert.False(t, h.ResolveLast("early", nil))

	assert.Equal(t, 0, h.Add("what is Go?", "thinking"))
	assert.True(t, h.Pending())
	cur, idx := h.Current()
	assert.Equal(t, 0, idx)
	assert.True(t, cur.Thinking)
	assert.Equal(t, "thinking", cur.Text)

	require.True(t, h.ResolveLast("A language.", nil))
	assert.False(t, h.Pending())
	cur, _ = h.Current()
	assert.Equal(t, Exchange{Question: "what is Go?", Text: "A language."}, cur)
	assert.False(t, h.ResolveLast("twice", nil), "only a pending answer is replaced")
}

func TestFailLast(t *testing.T) {
	h := New()
	h.Add("q", "thinking")
	require.True(t, h.FailLast("Sorry"))
	cur, _ := h.Current()
	assert.True(t, cur.Failed)
	assert.False(t, cur.Thinking)
	assert.Equal(t, "q", cur.Question)
}

func TestNavigation(t *testing.T) {
	h := New()
	_, ok := h.Prev()
	assert.False(t, ok)
	_, ok = h.Next()
	assert.False(t, ok)

	for _, q := range []string{"a", "b", "c"} {
		h.Add(q, "")
		h.ResolveLast(q+"!", nil)
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 2, h.Index(), "Add selects the newest")

	_, ok = h.Next()
	assert.False(t, ok)

	e, ok := h.Prev()
	require.True(t, ok)
	assert.Equal(t, "b", e.Question)
	h.Prev()
	e, ok = h.Prev()
	assert.True(t, ok)
	assert.Equal(t, "a", e.Question, "Prev stays on the oldest")

	e, ok = h.Next()
	require.True(t, ok)
	assert.Equal(t, "b", e.Question)

	h.SetIndex(2)
	assert.Equal(t, 2, h.Index())
	h.SetIndex(7)
	assert.Equal(t, 2, h.Index())
	assert.Len(t, h.Entries(), 3)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		q     string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"  spread\n over   lines ", 0, "spread over lines"},
		{"a long question", 6, "a lon…"},
		{"héllo wörld", 4, "hél…"},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Exchange{Question: tt.q}.Title(tt.width), tt.q)
	}
}

func TestFindBySession(t *testing.T) {
	c := playback.NewController(noDevice{})
	defer c.Close()
	fetch := func(context.Context) (*stream.Response, error) { return nil, errors.New("offline") }
	r, err := c.Play(context.Background(), fetch)
	require.NoError(t, err)
	<-r.Done()

	h := New()
	h.Add("text", "")
	h.ResolveLast("plain", nil)
	h.Add("voice", "")
	h.ResolveLast("", r)

	cur, _ := h.Current()
	assert.True(t, cur.Voice())
	assert.Equal(t, 1, h.Find(r.Session().ID()))
	assert.Equal(t, -1, h.Find("missing"))
}
