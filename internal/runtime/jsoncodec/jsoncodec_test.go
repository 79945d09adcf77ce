package jsoncodec

import "testing"

type samplePayload struct {
	Pin        int     `json:"pin"`
	Resistance float64 `json:"resistance"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := samplePayload{Pin: 3, Resistance: 10000.5}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"pin":3,"resistance":10000.5}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var out samplePayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}
}

func TestMarshalToString(t *testing.T) {
	s, err := MarshalToString([]samplePayload{{Pin: 1}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if s != `[{"pin":1,"resistance":0}]` {
		t.Fatalf("unexpected encoding: %s", s)
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"device_id":"d1"}`)) {
		t.Fatal("expected object to be valid")
	}
	for _, raw := range []string{"not json", `{"device_id":`, ""} {
		if Valid([]byte(raw)) {
			t.Fatalf("expected %q to be invalid", raw)
		}
	}
}
