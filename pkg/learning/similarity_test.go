package learning

import "testing"

func TestSimilarity_PatternSubsetOfAlert(t *testing.T) {
	alert := "ContainerUnhealthy|system:outpost|container:caddy|severity:warning"
	pattern := "ContainerUnhealthy|system:outpost|container:caddy"
	got := Similarity(alert, pattern)
	want := 0.95 // min(0.95, 0.70 + 3/10)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSimilarity_CriticalLabelMismatchClamps(t *testing.T) {
	alert := "ContainerUnhealthy|system:nexus|container:caddy"
	pattern := "ContainerUnhealthy|system:outpost|container:caddy"
	if got := Similarity(alert, pattern); got != 0.3 {
		t.Fatalf("got %v want 0.3", got)
	}
}

func TestSimilarity_JaccardWithCriticalBoost(t *testing.T) {
	alert := "DiskSpaceLow|system:outpost|filesystem:/data|severity:warning"
	pattern := "DiskSpaceLow|system:outpost|filesystem:/var"
	// intersection: DiskSpaceLow, system:outpost = 2; union = 5
	jaccard := 2.0 / 5.0
	want := jaccard + 0.15
	got := Similarity(alert, pattern)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSimilarity_EmptyFingerprintIsZero(t *testing.T) {
	if got := Similarity("", "x:y"); got != 0 {
		t.Fatalf("got %v want 0", got)
	}
}

func TestSimilarity_CapsAtOne(t *testing.T) {
	alert := "A|system:outpost|b:1|c:2|d:3|e:4|f:5"
	pattern := "A|system:outpost"
	// pattern is a subset: min(0.95, 0.70+2/10) = 0.9, below 1.0 so just check the cap logic
	// the Jaccard branch's cap is not exercised by this test
	got := Similarity(alert, pattern)
	if got > 1.0 {
		t.Fatalf("similarity exceeded 1.0: %v", got)
	}
}
