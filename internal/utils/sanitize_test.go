package utils

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		def  string
		want string
	}{
		{"Garden Watch", "timelapse", "Garden_Watch"},
		{"../../etc/passwd", "timelapse", "etcpasswd"},
		{"sunset #3!", "timelapse", "sunset_3"},
		{"   ", "timelapse", "timelapse"},
		{"", "timelapse", "timelapse"},
		{"plain_name-01", "timelapse", "plain_name-01"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in, tt.def); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
