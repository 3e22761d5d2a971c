package pipeline

import "testing"

func TestStageWireNames(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		queue string
	}{
		{Import, "import", "queue.import"},
		{Fingerprint, "fingerprint", "queue.fingerprint"},
		{MatchTrack, "match_track", "queue.match_track"},
		{MatchAlbum, "match_album", "queue.match_album"},
		{TagTrack, "tag_track", "queue.tag_track"},
		{Index, "index", "queue.index"},
	}

	if len(tests) != len(Stages()) {
		t.Fatalf("Stages() has %d entries, test covers %d", len(Stages()), len(tests))
	}

	for _, tt := range tests {
		if tt.stage.String() != tt.name {
			t.Errorf("%d.String() = %s, want %s", int(tt.stage), tt.stage.String(), tt.name)
		}
		if tt.stage.RoutingKey() != tt.name {
			t.Errorf("%s.RoutingKey() = %s", tt.name, tt.stage.RoutingKey())
		}
		if tt.stage.QueueName() != tt.queue {
			t.Errorf("%s.QueueName() = %s, want %s", tt.name, tt.stage.QueueName(), tt.queue)
		}
		if tt.stage.RetryQueueName() != tt.queue+".retry" {
			t.Errorf("%s.RetryQueueName() = %s", tt.name, tt.stage.RetryQueueName())
		}

		parsed, err := ParseStage(tt.name)
		if err != nil || parsed != tt.stage {
			t.Errorf("ParseStage(%s) = %v, %v", tt.name, parsed, err)
		}
		if len(tt.stage.Requires()) == 0 {
			t.Errorf("%s requires no identifier", tt.name)
		}
	}
}

func TestStageZeroValueInvalid(t *testing.T) {
	var s Stage
	if s.Valid() {
		t.Error("zero stage should be invalid")
	}
	if _, err := s.MarshalText(); err == nil {
		t.Error("MarshalText should fail for the zero stage")
	}
	if _, err := ParseStage(""); err == nil {
		t.Error("ParseStage(\"\") should fail")
	}
}

func TestStageNext(t *testing.T) {
	stages := Stages()
	for i, s := range stages {
		next, ok := s.Next()
		if i == len(stages)-1 {
			if ok {
				t.Errorf("%s should be the last stage, got next %s", s, next)
			}
			continue
		}
		if !ok || next != stages[i+1] {
			t.Errorf("%s.Next() = %v, %v; want %v", s, next, ok, stages[i+1])
		}
	}
}
