package pagecursor

import "testing"

func TestRoundTrip(t *testing.T) {
	key := &Key{PK: "USER#alice", SK: "GEN#2026-03-01T12:00:00Z#gen_abc"}
	cursor := Encode(key)
	if cursor == "" {
		t.Fatal("Encode returned empty cursor")
	}

	decoded := Decode(cursor)
	if decoded == nil {
		t.Fatal("Decode returned nil for a valid cursor")
	}
	if decoded.PK != key.PK || decoded.SK != key.SK {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestEncodeNil(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Fatalf("Encode(nil) = %q, want empty", got)
	}
}

func TestDecodeFailuresMeanStartOver(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not base64", "!!%%!!"},
		{"base64 but not json", "bm90LWpzb24"},
		{"json missing keys", "e30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode(tt.cursor); got != nil {
				t.Fatalf("Decode(%q) = %+v, want nil", tt.cursor, got)
			}
		})
	}
}
