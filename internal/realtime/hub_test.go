package realtime

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"dispatchhub/internal/events"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

func newTestClient(id string, role models.Role, buffer int) *Client {
	return NewClient(service.Identity{ID: id, Name: "User " + id, Role: role, IsActive: true}, nil, buffer)
}

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case frame := <-c.Frames():
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				panic(err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestHubRouting(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	admin := newTestClient("a1", models.RoleAdmin, 8)
	dispatcher := newTestClient("d1", models.RoleDispatcher, 8)
	courier := newTestClient("c1", models.RoleCourier, 8)
	courierTablet := newTestClient("c1", models.RoleCourier, 8)
	otherCourier := newTestClient("c2", models.RoleCourier, 8)
	for _, c := range []*Client{admin, dispatcher, courier, courierTablet, otherCourier} {
		hub.Register(c)
	}

	tests := []struct {
		name     string
		audience events.Audience
		want     map[*Client]int
	}{
		{
			name:     "single user on every device",
			audience: events.ToUser("c1"),
			want:     map[*Client]int{courier: 1, courierTablet: 1},
		},
		{
			name:     "staff roles",
			audience: events.ToRoles(models.RoleAdmin, models.RoleDispatcher),
			want:     map[*Client]int{admin: 1, dispatcher: 1},
		},
		{
			name:     "user also in a targeted role receives once",
			audience: events.Audience{Users: []string{"a1"}, Roles: []models.Role{models.RoleAdmin, models.RoleDispatcher}},
			want:     map[*Client]int{admin: 1, dispatcher: 1},
		},
		{
			name:     "nobody connected",
			audience: events.ToUser("ghost"),
			want:     map[*Client]int{},
		},
	}

	all := []*Client{admin, dispatcher, courier, courierTablet, otherCourier}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub.Publish(events.Event{Name: "probe", Audience: tt.audience, Payload: map[string]string{"k": "v"}})
			for _, c := range all {
				got := drain(c)
				if len(got) != tt.want[c] {
					t.Errorf("client %s/%s got %d frames, want %d", c.Identity().ID, c.Identity().Role, len(got), tt.want[c])
				}
				for _, env := range got {
					if env.Event != "probe" || string(env.Data) != `{"k":"v"}` {
						t.Errorf("frame = %s %s", env.Event, env.Data)
					}
				}
			}
		})
	}
}

func TestHubPreservesOrder(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient("c1", models.RoleCourier, 16)
	hub.Register(c)

	names := []string{"one", "two", "three", "four"}
	for _, name := range names {
		hub.Publish(events.Event{Name: name, Audience: events.ToUser("c1")})
	}

	got := drain(c)
	if len(got) != len(names) {
		t.Fatalf("got %d frames, want %d", len(got), len(names))
	}
	for i, env := range got {
		if env.Event != names[i] {
			t.Errorf("frame %d = %s, want %s", i, env.Event, names[i])
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := newTestClient("slow", models.RoleDispatcher, 1)
	fast := newTestClient("fast", models.RoleDispatcher, 8)
	hub.Register(slow)
	hub.Register(fast)

	for i := 0; i < 3; i++ {
		hub.Publish(events.Event{Name: "tick", Audience: events.ToRoles(models.RoleDispatcher)})
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client was not closed")
	}
	if hub.Count() != 1 {
		t.Errorf("hub count = %d, want 1", hub.Count())
	}
	if got := len(drain(fast)); got != 3 {
		t.Errorf("fast client got %d frames, want 3", got)
	}

	// Publishing to a closed client must not panic or block.
	hub.Send(slow, "late", nil)
}

func TestHubUnregisterIdempotent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient("c1", models.RoleCourier, 1)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	if hub.Count() != 0 {
		t.Errorf("count = %d", hub.Count())
	}
	hub.Publish(events.Event{Name: "after", Audience: events.ToUser("c1")})
	if got := drain(c); len(got) != 0 {
		t.Errorf("unregistered client received %d frames", len(got))
	}
}
