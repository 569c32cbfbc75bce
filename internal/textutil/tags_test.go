package textutil

import "testing"

func TestCountTags(t *testing.T) {
	tests := []struct {
		caption string
		want    int
	}{
		{"", 1},
		{"mikey", 1},
		{"mikey, smiling, outdoors", 3},
		{"a,,b", 3},
	}
	for _, tt := range tests {
		if got := CountTags(tt.caption); got != tt.want {
			t.Errorf("CountTags(%q) = %d, want %d", tt.caption, got, tt.want)
		}
		if got := len(SplitTags(tt.caption)); got != tt.want {
			t.Errorf("len(SplitTags(%q)) = %d, want %d", tt.caption, got, tt.want)
		}
	}
}

func TestEmbeddedNumber(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"img_0012.png", 12, true},
		{"7.jpg", 7, true},
		{"shot3_take9.png", 3, true},
		{"portrait.png", 0, false},
	}
	for _, tt := range tests {
		got, ok := EmbeddedNumber(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("EmbeddedNumber(%q) = (%d, %v), want (%d, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestJoinTags(t *testing.T) {
	if got := JoinTags([]string{"mikey", "smiling"}); got != "mikey, smiling" {
		t.Errorf("JoinTags() = %q", got)
	}
}
