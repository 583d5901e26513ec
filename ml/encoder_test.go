package ml

import (
	"errors"
	"testing"
)

func TestLabelEncoderSortedVocabulary(t *testing.T) {
	enc := &LabelEncoder{}
	codes, err := enc.FitTransform([]string{"Salaried", "Self-Employed", "Salaried", "Business", "Salaried", "Self-Employed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 2, 1, 0, 1, 2}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("code %d: expected %d, got %d", i, want[i], codes[i])
		}
	}

	classes := enc.Classes()
	if len(classes) != 3 || classes[0] != "Business" || classes[2] != "Self-Employed" {
		t.Fatalf("unexpected classes: %v", classes)
	}

	name, err := enc.Inverse(2)
	if err != nil || name != "Self-Employed" {
		t.Fatalf("unexpected inverse: %q %v", name, err)
	}
}

func TestLabelEncoderUnknownValue(t *testing.T) {
	enc := &LabelEncoder{}
	if _, err := enc.Transform("Salaried"); err == nil {
		t.Fatal("expected error before fit")
	}
	if err := enc.Fit([]string{"Business", "Salaried"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := enc.Transform("Freelancer"); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if _, err := enc.Inverse(7); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if err := enc.Fit(nil); err == nil {
		t.Fatal("expected error for empty fit")
	}
}
