package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixtures(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixtures failed: %v", err)
	}
	return path
}

func TestLoadExampleFixtures(t *testing.T) {
	fixtures, err := loadFixtures("fixtures.example.yaml")
	if err != nil {
		t.Fatalf("load example fixtures failed: %v", err)
	}
	if len(fixtures.Operators) != 3 || len(fixtures.Systems) != 4 || len(fixtures.Pallets) != 4 {
		t.Fatalf("unexpected fixtures %+v", fixtures)
	}
	if !fixtures.Pallets[1].Locked || fixtures.Systems[1].DOANumber != "" {
		t.Fatalf("unexpected pallet or system fields %+v", fixtures)
	}
}

func TestLoadFixturesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown system": "systems:\n  - service_tag: A1\npallets:\n  - systems: [B2]\n",
		"placed twice":   "systems:\n  - service_tag: A1\npallets:\n  - systems: [A1]\n  - systems: [a1]\n",
		"duplicate tag":  "systems:\n  - service_tag: A1\n  - service_tag: a1\n",
		"no password":    "operators:\n  - username: lead\n",
		"too many":       "pallets:\n  - systems: [A,B,C,D,E,F,G,H,I,J]\n",
	}
	for name, body := range cases {
		if _, err := loadFixtures(writeFixtures(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
