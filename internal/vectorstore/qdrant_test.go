package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		tenantID string
		want     string
	}{
		{"plain tenant", "kb", "tenant1", "kb_tenant1"},
		{"uuid tenant", "kb", "3f2a-77b1", "kb_3f2a-77b1"},
		{"email-like tenant", "kb", "user@example.com", "kb_user_example_com"},
		{"spaces and unicode", "kb", "acme corp ümlauts", "kb_acme_corp__mlauts"},
		{"empty tenant", "kb", "", "kb_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CollectionName(tt.prefix, tt.tenantID); got != tt.want {
				t.Errorf("CollectionName(%q, %q) = %q, want %q", tt.prefix, tt.tenantID, got, tt.want)
			}
		})
	}
}

func TestCollectionName_Stable(t *testing.T) {
	// Two distinct tenants must not collide just because sanitization maps
	// their IDs to the same name prefix boundary.
	a := CollectionName("kb", "tenant-a")
	b := CollectionName("kb", "tenant-b")
	if a == b {
		t.Errorf("distinct tenants map to the same collection: %s", a)
	}
	if CollectionName("kb", "tenant-a") != a {
		t.Error("CollectionName must be deterministic")
	}
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name  string
		value *qdrant.Value
		check func(any) bool
	}{
		{
			name:  "string",
			value: &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: "hello"}},
			check: func(v any) bool { return v == "hello" },
		},
		{
			name:  "integer",
			value: &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: 42}},
			check: func(v any) bool { return v == int64(42) },
		},
		{
			name:  "double",
			value: &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: 0.5}},
			check: func(v any) bool { return v == 0.5 },
		},
		{
			name:  "bool",
			value: &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}},
			check: func(v any) bool { return v == true },
		},
		{
			name:  "nil kind",
			value: &qdrant.Value{},
			check: func(v any) bool { return v == nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertValue(tt.value); !tt.check(got) {
				t.Errorf("convertValue() = %v (%T)", got, got)
			}
		})
	}
}

func TestConvertPayloadToMap(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"tenant_id":   {Kind: &qdrant.Value_StringValue{StringValue: "tenant-a"}},
		"chunk_index": {Kind: &qdrant.Value_IntegerValue{IntegerValue: 3}},
		"nil_value":   nil,
	}

	m := convertPayloadToMap(payload)
	if m["tenant_id"] != "tenant-a" {
		t.Errorf("tenant_id = %v", m["tenant_id"])
	}
	if m["chunk_index"] != int64(3) {
		t.Errorf("chunk_index = %v", m["chunk_index"])
	}
	if _, ok := m["nil_value"]; ok {
		t.Error("nil values should be dropped")
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	if _, err := NewQdrantStore("://invalid"); err == nil {
		t.Error("NewQdrantStore() should fail for an invalid URL")
	}
}
