package events

import (
	"testing"
)

func TestSubjectFor(t *testing.T) {
	b := &Bus{active: true}

	tests := []struct {
		event Event
		want  string
	}{
		{
			Event{Type: EventSessionOpened, SessionID: "sess-1"},
			"cook.session.sess-1.session.opened",
		},
		{
			Event{Type: EventSessionClosed, SessionID: "sess-1"},
			"cook.session.sess-1.session.closed",
		},
		{
			Event{Type: EventSessionLagged, SessionID: "sess-2"},
			"cook.session.sess-2.session.lagged",
		},
	}

	for _, tc := range tests {
		t.Run(string(tc.event.Type), func(t *testing.T) {
			got := b.subjectFor(tc.event)
			if got != tc.want {
				t.Errorf("subjectFor(%+v) = %q, want %q", tc.event, got, tc.want)
			}
		})
	}
}
