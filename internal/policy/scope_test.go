package policy

import "testing"

func mustParsePayload(t *testing.T, payload string) interface{} {
	t.Helper()
	doc, err := parsePayload([]byte(payload))
	if err != nil {
		t.Fatalf("parsePayload(%q) returned error: %v", payload, err)
	}
	return doc
}

func TestHasRequiredScopes(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		required []string
		want     bool
	}{
		{
			name:     "no required scopes always passes",
			payload:  `{"client_id":"my-client"}`,
			required: nil,
			want:     true,
		},
		{
			name:     "empty required scopes always passes",
			payload:  `{"scope":"read"}`,
			required: []string{},
			want:     true,
		},
		{
			name:     "single scope from string",
			payload:  `{"scope":"read"}`,
			required: []string{"read"},
			want:     true,
		},
		{
			name:     "subset of space separated string",
			payload:  `{"scope":"read write admin"}`,
			required: []string{"read", "write"},
			want:     true,
		},
		{
			name:     "missing scope in string",
			payload:  `{"scope":"read write"}`,
			required: []string{"admin"},
			want:     false,
		},
		{
			name:     "scope array",
			payload:  `{"scope":["read","write"]}`,
			required: []string{"write"},
			want:     true,
		},
		{
			name:     "scope array missing requirement",
			payload:  `{"scope":["read","write"]}`,
			required: []string{"super-admin"},
			want:     false,
		},
		{
			name:     "numeric scope in array",
			payload:  `{"scope":[123,"read"]}`,
			required: []string{"123"},
			want:     true,
		},
		{
			name:     "missing scope field grants nothing",
			payload:  `{"client_id":"my-client"}`,
			required: []string{"read"},
			want:     false,
		},
		{
			name:     "comparison is case sensitive",
			payload:  `{"scope":"Read"}`,
			required: []string{"read"},
			want:     false,
		},
		{
			name:     "comma is not a separator",
			payload:  `{"scope":"read,write"}`,
			required: []string{"read"},
			want:     false,
		},
		{
			name:     "duplicate scopes collapse",
			payload:  `{"scope":"read read"}`,
			required: []string{"read", "read"},
			want:     true,
		},
		{
			name:     "extra separators do not hide scopes",
			payload:  `{"scope":"read  write"}`,
			required: []string{"read", "write"},
			want:     true,
		},
		{
			name:     "non object payload grants nothing",
			payload:  `"read write"`,
			required: []string{"read"},
			want:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := mustParsePayload(t, tc.payload)
			if got := hasRequiredScopes(payload, tc.required); got != tc.want {
				t.Errorf("hasRequiredScopes(%s, %v) = %v, want %v", tc.payload, tc.required, got, tc.want)
			}
			// The check must not mutate its inputs.
			if got := hasRequiredScopes(payload, tc.required); got != tc.want {
				t.Errorf("second hasRequiredScopes(%s, %v) = %v, want %v", tc.payload, tc.required, got, tc.want)
			}
		})
	}
}

func TestTextValue(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "string", payload: `{"v":"my-client"}`, want: "my-client"},
		{name: "integer", payload: `{"v":42}`, want: "42"},
		{name: "float", payload: `{"v":1.5}`, want: "1.5"},
		{name: "boolean", payload: `{"v":true}`, want: "true"},
		{name: "null", payload: `{"v":null}`, want: ""},
		{name: "object", payload: `{"v":{"nested":1}}`, want: ""},
		{name: "array", payload: `{"v":["a"]}`, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustParsePayload(t, tc.payload)
			v, _ := payloadField(doc, "v")
			if got := textValue(v); got != tc.want {
				t.Errorf("textValue(%v) = %q, want %q", v, got, tc.want)
			}
		})
	}
}
