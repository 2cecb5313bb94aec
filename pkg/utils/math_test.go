package utils

import (
	"math"
	"testing"
)

// floatEquals сравнивает float64 с допуском
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// Тесты RoundToStep
// ============================================================

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		step     string
		expected float64
		wantErr  bool
	}{
		{"exchange step", 0.123456, "0.00100000", 0.123, false},
		{"exact match", 0.123, "0.001", 0.123, false},
		{"round down", 1.999, "0.01", 1.99, false},
		{"whole numbers", 100.5, "1", 100, false},
		{"zero value", 0, "0.001", 0, false},
		{"zero step", 3.9, "0", 3.9, false},
		{"negative step", 0.123, "-0.001", 0.123, false},
		{"float artefact 0.3/0.1", 0.3, "0.1", 0.3, false},
		{"float artefact 0.7/0.1", 0.7, "0.1", 0.7, false},
		{"margin 50 / price 3.3", 50 / 3.3, "0.1", 15.1, false},
		{"large number", 12345.6789, "0.01000000", 12345.67, false},
		{"below one lot", 0.0004, "0.001", 0, false},
		{"padded step", 15.15, " 0.1 ", 15.1, false},
		{"invalid step", 1, "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoundToStep(tt.value, tt.step)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RoundToStep error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !floatEquals(got, tt.expected) {
				t.Errorf("RoundToStep(%v, %q) = %v, want %v", tt.value, tt.step, got, tt.expected)
			}
		})
	}
}

func TestRoundToStep_Idempotent(t *testing.T) {
	steps := []string{"0.00100000", "0.01000000", "0.1", "1", "0.00001000"}
	values := []float64{0.3, 0.7, 1.15, 2.675, 12345.6789, 50 / 3.3, 1000 / 27123.4}

	for _, step := range steps {
		for _, v := range values {
			once, err := RoundToStep(v, step)
			if err != nil {
				t.Fatalf("RoundToStep(%v, %q): %v", v, step, err)
			}
			twice, _ := RoundToStep(once, step)
			if once != twice {
				t.Errorf("not idempotent: step=%q value=%v once=%v twice=%v", step, v, once, twice)
			}
			if once > v+1e-12 {
				t.Errorf("rounded up: step=%q value=%v result=%v", step, v, once)
			}
		}
	}
}

func TestStepPrecision(t *testing.T) {
	tests := map[string]int32{
		"0.00100000": 3,
		"0.1":        1,
		"1":          0,
		"1.00000000": 0,
		"0.00001":    5,
		"garbage":    8,
	}
	for step, want := range tests {
		if got := StepPrecision(step); got != want {
			t.Errorf("StepPrecision(%q) = %d, want %d", step, got, want)
		}
	}
}

func TestFormatQuantity(t *testing.T) {
	tests := []struct {
		qty       float64
		precision int32
		expected  string
	}{
		{0.123, 3, "0.123"},
		{0.1239, 3, "0.123"},
		{100, 0, "100"},
		{0.00000123, 8, "0.00000123"},
	}
	for _, tt := range tests {
		if got := FormatQuantity(tt.qty, tt.precision); got != tt.expected {
			t.Errorf("FormatQuantity(%v, %d) = %q, want %q", tt.qty, tt.precision, got, tt.expected)
		}
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"27123.40000000", 27123.4, false},
		{"-0.010", -0.01, false},
		{"", 0, false},
		{" 5 ", 5, false},
		{"n/a", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFloat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFloat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !floatEquals(got, tt.expected) {
			t.Errorf("ParseFloat(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func BenchmarkRoundToStep(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RoundToStep(1234.56789, "0.00100000")
	}
}
