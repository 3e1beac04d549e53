package local

import (
	"testing"

	"scrapbox.gg/internal/protocol"
)

func TestLocal_BothDirections(t *testing.T) {
	conn, client := New()
	client.Send(protocol.ToggleGamePaused{})
	client.Send(protocol.TrashObject{ID: 4})

	got := conn.Read()
	if len(got) != 2 || got[1].(protocol.TrashObject).ID != 4 {
		t.Fatalf("read %+v", got)
	}
	if len(conn.Read()) != 0 {
		t.Fatalf("Read drains")
	}

	conn.Send(protocol.RemoveGameObject{ID: 4})
	if msgs := client.Receive(); len(msgs) != 1 || msgs[0].MessageType() != protocol.TypeRemoveGameObject {
		t.Fatalf("receive %+v", msgs)
	}

	client.Close()
	if !conn.Disconnected() {
		t.Fatalf("close should be visible to the world side")
	}
	conn.Send(protocol.RemoveGameObject{ID: 5})
	if len(client.Receive()) != 0 {
		t.Fatalf("sends after close are dropped")
	}
}
