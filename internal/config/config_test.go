package config

import "testing"

func TestPalletConfigTimeZoneName(t *testing.T) {
	cases := []struct {
		name string
		cfg  PalletConfig
		want string
	}{
		{name: "explicit timezone wins", cfg: PalletConfig{Timezone: "Europe/Berlin", Location: "TSS"}, want: "Europe/Berlin"},
		{name: "tss site", cfg: PalletConfig{Location: "TSS"}, want: "America/Chicago"},
		{name: "frk site lower case", cfg: PalletConfig{Location: " frk "}, want: "America/New_York"},
		{name: "unknown site", cfg: PalletConfig{Location: "XYZ"}, want: "UTC"},
		{name: "empty", cfg: PalletConfig{}, want: "UTC"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.TimeZoneName(); got != tc.want {
				t.Fatalf("timezone want %s got %s", tc.want, got)
			}
		})
	}
}

func TestPalletConfigLoadLocationInvalid(t *testing.T) {
	cfg := PalletConfig{Timezone: "Not/AZone"}
	if _, err := cfg.LoadLocation(); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
}

func TestPalletConfigIntervals(t *testing.T) {
	cfg := PalletConfig{}
	if cfg.ShapeRepairInterval().Seconds() != 60 {
		t.Fatalf("default repair interval want 60s got %v", cfg.ShapeRepairInterval())
	}
	if cfg.SystemCacheTTL().Minutes() != 5 {
		t.Fatalf("default cache ttl want 5m got %v", cfg.SystemCacheTTL())
	}
	cfg.ShapeRepairIntervalSeconds = 5
	if cfg.ShapeRepairInterval().Seconds() != 5 {
		t.Fatalf("repair interval want 5s got %v", cfg.ShapeRepairInterval())
	}
}
