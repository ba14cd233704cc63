package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetree/livetree/pkg/dom"
)

func testDoc(t *testing.T) (*dom.Document, *dom.Node) {
	t.Helper()
	doc := dom.NewDocument()
	feed := doc.NewElement("feed")
	feed.SetAttribute("id", "feed")
	doc.Root.AppendChild(feed)
	return doc, feed
}

func TestApplyAppend(t *testing.T) {
	doc, feed := testDoc(t)
	c := &Consumer{Doc: doc}

	err := c.Apply(Op{Op: "append", Parent: "#feed", Tag: "item", Name: "class", Value: "entry", Text: "hello"})
	require.NoError(t, err)

	require.Len(t, feed.Children(), 1)
	n := feed.Children()[0]
	assert.Equal(t, "item", n.Tag())
	assert.True(t, n.HasClass("entry"))
	assert.Equal(t, "hello", n.Text())
}

func TestApplyAppendDefaultsToRoot(t *testing.T) {
	doc, _ := testDoc(t)
	c := &Consumer{Doc: doc}

	require.NoError(t, c.Apply(Op{Op: "append", Tag: "status"}))
	last := doc.Root.Children()[len(doc.Root.Children())-1]
	assert.Equal(t, "status", last.Tag())
}

func TestApplyAttrStyleText(t *testing.T) {
	doc, feed := testDoc(t)
	c := &Consumer{Doc: doc}
	require.NoError(t, c.Apply(Op{Op: "append", Parent: "#feed", Tag: "item", Name: "id", Value: "i1", Text: "old"}))

	require.NoError(t, c.Apply(Op{Op: "set-attr", Target: "#i1", Name: "state", Value: "open"}))
	n := feed.Children()[0]
	v, ok := n.Attribute("state")
	require.True(t, ok)
	assert.Equal(t, "open", v)

	require.NoError(t, c.Apply(Op{Op: "set-style", Target: "#i1", Name: "color", Value: "red"}))
	sv, ok := n.Style("color")
	require.True(t, ok)
	assert.Equal(t, "red", sv)

	require.NoError(t, c.Apply(Op{Op: "set-text", Target: "#i1", Text: "new"}))
	assert.Equal(t, "new", n.Text())

	require.NoError(t, c.Apply(Op{Op: "remove-attr", Target: "#i1", Name: "state"}))
	_, ok = n.Attribute("state")
	assert.False(t, ok)
}

func TestApplyRemove(t *testing.T) {
	doc, feed := testDoc(t)
	c := &Consumer{Doc: doc}
	require.NoError(t, c.Apply(Op{Op: "append", Parent: "#feed", Tag: "item", Name: "id", Value: "i1"}))

	require.NoError(t, c.Apply(Op{Op: "remove", Target: "#i1"}))
	assert.Empty(t, feed.Children())
}

func TestApplyDispatch(t *testing.T) {
	doc, feed := testDoc(t)
	c := &Consumer{Doc: doc}

	var got dom.Event
	feed.AddEventListener("refresh", func(ev dom.Event) { got = ev })

	require.NoError(t, c.Apply(Op{Op: "dispatch", Target: "#feed", Event: "refresh", Value: "now"}))
	assert.Equal(t, "refresh", got.Type)
	assert.Equal(t, "now", got.Data)
}

func TestApplyErrors(t *testing.T) {
	doc, _ := testDoc(t)
	c := &Consumer{Doc: doc}

	assert.Error(t, c.Apply(Op{Op: "levitate"}), "unknown op")
	assert.Error(t, c.Apply(Op{Op: "remove"}), "missing target")
	assert.Error(t, c.Apply(Op{Op: "remove", Target: "#nope"}), "no match")
	assert.Error(t, c.Apply(Op{Op: "remove", Target: "["}), "bad selector")
	assert.Error(t, c.Apply(Op{Op: "append", Parent: "#feed"}), "append without tag")
}

func TestOnMessageSkipsBadOps(t *testing.T) {
	doc, feed := testDoc(t)
	c := &Consumer{Doc: doc}

	c.OnMessage([]byte(`{"ops":[
		{"op":"append","parent":"#feed","tag":"item","name":"id","value":"i1"},
		{"op":"remove","target":"#missing"},
		{"op":"set-attr","target":"#i1","name":"state","value":"open"}
	]}`))

	require.Len(t, feed.Children(), 1)
	v, ok := feed.Children()[0].Attribute("state")
	require.True(t, ok)
	assert.Equal(t, "open", v)
}

func TestOnMessageBadJSON(t *testing.T) {
	doc, feed := testDoc(t)
	c := &Consumer{Doc: doc}

	c.OnMessage([]byte(`{"ops":`))
	c.OnMessage([]byte(`{"ops":[]}`))
	assert.Empty(t, feed.Children())
}
