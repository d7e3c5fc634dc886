package eventbus

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{}

func TestPublishOrder(t *testing.T) {
	b := New()
	var got []string
	Subscribe(b, func(_ context.Context, p ping) { got = append(got, "first") })
	Subscribe(b, func(_ context.Context, p ping) { got = append(got, "second") })
	Subscribe(b, func(_ context.Context, p pong) { got = append(got, "pong") })

	Publish(context.Background(), b, ping{N: 1})

	want := []string{"first", "second"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	var got []int
	h := func(_ context.Context, p ping) { got = append(got, p.N) }
	un1 := Subscribe(b, h)
	Subscribe(b, func(_ context.Context, p ping) { got = append(got, -p.N) })
	require.Equal(t, 2, Len[ping](b))

	un1()
	un1()
	require.Equal(t, 1, Len[ping](b))

	Publish(context.Background(), b, ping{N: 3})
	require.Equal(t, []int{-3}, got)
}

func TestNilBus(t *testing.T) {
	var b *Bus
	un := Subscribe(b, func(context.Context, ping) { t.Fatal("called") })
	un()
	Publish(context.Background(), b, ping{})
	require.Zero(t, Len[ping](b))
}
