package render

import (
	"strings"
	"testing"
)

func TestColormapRegistry(t *testing.T) {
	tests := []struct {
		variant string
		wantErr string
	}{
		{"jet", ""},
		{"", ""},
		{"hot", ""},
		{"gray", ""},
		{"grayscale", ""},
		{"viridis", "not yet implemented"},
		{"magma", "unknown colormap"},
	}

	for _, tt := range tests {
		cm, err := NewColormap(tt.variant)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("variant %q: unexpected error %v", tt.variant, err)
			}
			if cm == nil {
				t.Errorf("variant %q: nil colormap", tt.variant)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("variant %q: expected %q error, got %v", tt.variant, tt.wantErr, err)
		}
	}
}

func TestJetEndpoints(t *testing.T) {
	cm, _ := NewColormap("jet")

	cold := cm.Map(0)
	if cold.B <= cold.R || cold.B <= cold.G {
		t.Errorf("jet at 0 must be blue-dominant, got %+v", cold)
	}

	hot := cm.Map(1)
	if hot.R <= hot.B || hot.R <= hot.G {
		t.Errorf("jet at 1 must be red-dominant, got %+v", hot)
	}

	mid := cm.Map(0.5)
	if mid.G != 255 {
		t.Errorf("jet at 0.5 must saturate green, got %+v", mid)
	}
}

func TestHotEndpoints(t *testing.T) {
	cm, _ := NewColormap("hot")

	if c := cm.Map(0); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("hot at 0 must be black, got %+v", c)
	}
	if c := cm.Map(1); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("hot at 1 must be white, got %+v", c)
	}
	if c := cm.Map(1.0 / 3); c.R != 255 || c.G != 0 {
		t.Errorf("hot at 1/3 must be pure red, got %+v", c)
	}
}

func TestGrayRamp(t *testing.T) {
	cm, _ := NewColormap("gray")

	prev := -1
	for _, v := range []float32{0, 0.25, 0.5, 0.75, 1} {
		c := cm.Map(v)
		if c.R != c.G || c.G != c.B {
			t.Fatalf("gray at %v is not neutral: %+v", v, c)
		}
		if int(c.R) <= prev {
			t.Fatalf("gray ramp not monotonic at %v", v)
		}
		prev = int(c.R)
	}
}

func TestChannelByteClamps(t *testing.T) {
	if channelByte(-0.5) != 0 {
		t.Error("negative values must clamp to 0")
	}
	if channelByte(1.5) != 255 {
		t.Error("values above 1 must clamp to 255")
	}
	if channelByte(0.5) != 128 {
		t.Errorf("0.5 should round to 128, got %d", channelByte(0.5))
	}
}
