package version

import "testing"

func TestWithCommitNeverPanics(t *testing.T) {
	if s := WithCommit(); s == "" {
		t.Fatal("WithCommit() returned empty string")
	}
}

func TestBuildYearIsPlausible(t *testing.T) {
	y := BuildYear()
	if y < 2020 || y > 2100 {
		t.Fatalf("BuildYear() = %d, want a plausible calendar year", y)
	}
}
