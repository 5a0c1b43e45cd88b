package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSanitizeName verifies allow-list filtering of upstream asset names.
func TestSanitizeName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "clean_name_unchanged",
			in:   "widget-1.2.3-amd64.deb",
			want: "widget-1.2.3-amd64.deb",
		},
		{
			name: "path_traversal_degrades",
			in:   "../../etc/passwd.deb",
			want: "....etcpasswd.deb",
		},
		{
			name: "shell_metacharacters_removed",
			in:   "widget$(reboot) 1.0;.deb",
			want: "widgetreboot1.0.deb",
		},
		{
			name: "empty_stays_empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := SanitizeName(tt.in)
			require.Equal(t, tt.want, got)

			// Filtering is idempotent.
			require.Equal(t, got, SanitizeName(got))
		})
	}
}
