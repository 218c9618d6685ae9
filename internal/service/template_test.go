package service

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		format string
		vars   map[string]string
		want   string
	}{
		{
			name:   "basic substitution",
			format: "**{username}**: {message}",
			vars:   map[string]string{"username": "alice", "message": "hi"},
			want:   "**alice**: hi",
		},
		{
			name:   "repeated placeholder",
			format: "{server} {server}",
			vars:   map[string]string{"server": "survival"},
			want:   "survival survival",
		},
		{
			name:   "unknown placeholder kept",
			format: "{username} on {sevrer}",
			vars:   map[string]string{"username": "alice", "server": "survival"},
			want:   "alice on {sevrer}",
		},
		{
			name:   "no vars",
			format: "static text",
			vars:   nil,
			want:   "static text",
		},
		{
			name:   "value containing braces is not re-expanded",
			format: "{message}",
			vars:   map[string]string{"message": "{username}"},
			want:   "{username}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.format, tt.vars); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}
