package broker

import (
	"context"
	"testing"

	"newstech/pkg/envelope"

	"github.com/redis/go-redis/v9"
)

func TestNilBrokerIsNoop(t *testing.T) {
	var b *Broker
	b.PostsChanged(context.Background(), 1, "deleted")
	b.On(ActionChange, func(envelope.Envelope) { t.Error("called") })
	if err := b.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Close()
	if New(nil, "x", nil) != nil {
		t.Error("New(nil) should be nil")
	}
}

func TestDispatchSkipsOwnEvents(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	b := New(rdb, "instance-a", nil)
	defer b.Close()

	var got []Change
	b.On(ActionChange, func(e envelope.Envelope) {
		c, err := envelope.ParseData[Change](e)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, c)
	})

	own, _ := envelope.NewEvent(ActionChange, "instance-a", Change{PostID: 1, Action: "deleted"})
	other, _ := envelope.NewEvent(ActionChange, "instance-b", Change{PostID: 2, Action: "created"})
	unknown, _ := envelope.NewEvent("other.thing", "instance-b", nil)
	for _, e := range []envelope.Envelope{own, other, unknown} {
		raw, _ := e.Marshal()
		b.dispatch(string(raw))
	}
	b.dispatch("not json")

	if len(got) != 1 || got[0].PostID != 2 || got[0].Action != "created" {
		t.Errorf("got %+v", got)
	}
}
