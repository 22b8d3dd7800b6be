package validate

import "testing"

func TestClusterKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"", false},
		{"cluster-1", true},
		{"prod_us-east_2", true},
		{"a", true},
		{"CLUSTER-123", true},
		{string(make([]byte, ClusterKeyMaxLen+1)), false},
		{"bad/key", false},
		{"bad.key", false},
		{"bad key", false},
	}
	for _, tt := range tests {
		if got := ClusterKey(tt.key); got != tt.want {
			t.Errorf("ClusterKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
