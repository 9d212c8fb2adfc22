package rpc

import (
	"encoding/json"
	"testing"
)

func TestInboundIsResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"response with result", `{"jsonrpc":"2.0","result":{"track":{}},"id":"abc"}`, true},
		{"response with error", `{"jsonrpc":"2.0","error":{"code":1,"message":"no track"},"id":"abc"}`, true},
		{"client command", `{"jsonrpc":"2.0","method":"vote","params":{"dope":1}}`, false},
		{"client request", `{"jsonrpc":"2.0","method":"joinChannel","params":{},"id":"7"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Inbound
			if err := json.Unmarshal([]byte(tt.raw), &in); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := in.IsResponse(); got != tt.want {
				t.Errorf("IsResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotificationOmitsID(t *testing.T) {
	data, err := json.Marshal(NewNotification(MethodPauseChannelTrack, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["id"]; ok {
		t.Fatal("notification must not carry an id")
	}
	if m["jsonrpc"] != Version {
		t.Fatalf("jsonrpc = %v, want %q", m["jsonrpc"], Version)
	}
}

func TestRequestCarriesCorrelationID(t *testing.T) {
	data, err := json.Marshal(NewRequest(MethodNextChannelTrack, map[string]string{"userId": "u1"}, "42"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["id"] != "42" {
		t.Fatalf("id = %v, want 42", m["id"])
	}
	if m["method"] != MethodNextChannelTrack {
		t.Fatalf("method = %v", m["method"])
	}
}
