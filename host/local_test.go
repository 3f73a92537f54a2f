package host

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SubscribePublish(t *testing.T) {
	l := NewLocal(nil)
	ctx := context.Background()

	var joins atomic.Int32
	sub, err := l.Subscribe(ClassPlayerJoin, func(_ context.Context, ev Event) {
		assert.Equal(t, ClassPlayerJoin, ev.Class())
		joins.Add(1)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Subscribers(ClassPlayerJoin))

	assert.Equal(t, 1, l.Publish(ctx, &GenericEvent{EventClass: ClassPlayerJoin}))
	assert.Equal(t, 0, l.Publish(ctx, &GenericEvent{EventClass: ClassPlayerQuit}))
	assert.Equal(t, int32(1), joins.Load())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, l.Publish(ctx, &GenericEvent{EventClass: ClassPlayerJoin}))
	assert.Equal(t, int32(1), joins.Load())
}

func TestLocal_PublishSurvivesPanickingHandler(t *testing.T) {
	l := NewLocal(nil)
	var delivered atomic.Bool

	_, err := l.Subscribe(ClassBlockBreak, func(context.Context, Event) { panic("boom") })
	require.NoError(t, err)
	_, err = l.Subscribe(ClassBlockBreak, func(context.Context, Event) { delivered.Store(true) })
	require.NoError(t, err)

	l.Publish(context.Background(), &GenericEvent{EventClass: ClassBlockBreak})
	assert.True(t, delivered.Load())
}

func TestLocal_SubscribeValidation(t *testing.T) {
	l := NewLocal(nil)
	_, err := l.Subscribe("", func(context.Context, Event) {})
	assert.Error(t, err)
	_, err = l.Subscribe(ClassPlayerJoin, nil)
	assert.Error(t, err)
}

func TestLocal_Players(t *testing.T) {
	l := NewLocal(nil)
	l.AddPlayer(NewLocalPlayer("2", "steve", ""))
	l.AddPlayer(NewLocalPlayer("1", "alex", "de_de"))

	players := l.OnlinePlayers()
	require.Len(t, players, 2)
	assert.Equal(t, "alex", players[0].Name())
	assert.Equal(t, DefaultLocale, players[1].Locale())

	l.RemovePlayer("1")
	assert.Len(t, l.OnlinePlayers(), 1)
}

func TestLocal_Translate(t *testing.T) {
	l := NewLocal(nil)
	l.SetMessages("en_us", map[string]string{"greet": "Hello {name}!"})
	l.SetMessages("de_DE", map[string]string{"greet": "Hallo {name}!"})

	vars := map[string]string{"name": "alex"}
	assert.Equal(t, "Hallo alex!", l.Translate("de_de", "greet", vars))
	assert.Equal(t, "Hello alex!", l.Translate("fr_fr", "greet", vars))
	assert.Equal(t, "raw alex {missing}", l.Translate("en_us", "raw {name} {missing}", vars))
}

func TestExpand(t *testing.T) {
	vars := map[string]string{"a": "1", "b": "2"}
	assert.Equal(t, "1+2", Expand("{a}+{b}", vars))
	assert.Equal(t, "{a", Expand("{a", vars))
	assert.Equal(t, "x {c} y", Expand("x {c} y", vars))
	assert.Equal(t, "plain", Expand("plain", nil))
}

func TestClasses(t *testing.T) {
	classes := Classes()
	require.NotEmpty(t, classes)
	for i := 1; i < len(classes); i++ {
		assert.Less(t, classes[i-1].Class, classes[i].Class)
	}

	RegisterClass(ClassInfo{Class: "test.custom", Label: "Custom"})
	found := false
	for _, c := range Classes() {
		if c.Class == "test.custom" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLocalPlayer_Messages(t *testing.T) {
	p := NewLocalPlayer("1", "alex", "en_us")
	require.NoError(t, p.SendMessage("hi"))
	require.NoError(t, p.SendMessage("there"))
	assert.Equal(t, []string{"hi", "there"}, p.Messages())
	assert.Equal(t, "alex", p.String())
}
