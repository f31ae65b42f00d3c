package bitslice

import (
	"reflect"
	"testing"
)

func TestSingleIndexDefaultsRToLPlusOne(t *testing.T) {
	sl, err := Parse("10")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !reflect.DeepEqual(got, []uint{10}) {
		t.Errorf("got %v, want [10]", got)
	}
}

func TestRangeWithStep(t *testing.T) {
	sl, err := Parse("0:10:2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []uint{0, 2, 4, 6, 8}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRelativeR(t *testing.T) {
	sl, err := Parse("5:+3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []uint{5, 6, 7}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNegativeFromEnd(t *testing.T) {
	sl, err := Parse("-32:40")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(40) // 40-bit message, want bits 8..39
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 32 || got[0] != 8 || got[len(got)-1] != 39 {
		t.Errorf("got %v", got)
	}
}

func TestDotNotationByteBit(t *testing.T) {
	sl, err := Parse("2.3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// byte 2, bit 3 -> 2*8+3 = 19.
	if !reflect.DeepEqual(got, []uint{19}) {
		t.Errorf("got %v, want [19]", got)
	}
}

func TestArithmeticExpression(t *testing.T) {
	sl, err := Parse("(1+2)*8:0x20")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got[0] != 24 || got[len(got)-1] != 31 {
		t.Errorf("got %v, want 24..31", got)
	}
}

func TestDescendingStep(t *testing.T) {
	sl, err := Parse("10:0:-2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []uint{10, 8, 6, 4, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestZeroStepIsError(t *testing.T) {
	if _, err := Parse("0:10:0"); err != ErrZeroStep {
		t.Errorf("Parse with step 0: err = %v, want ErrZeroStep", err)
	}
}

func TestEmptyExpressionIsError(t *testing.T) {
	if _, err := Parse(""); err != ErrEmptySlice {
		t.Errorf("Parse(\"\"): err = %v, want ErrEmptySlice", err)
	}
}

func TestTooManyComponentsIsError(t *testing.T) {
	if _, err := Parse("1:2:3:4"); err == nil {
		t.Errorf("expected error for 4-component slice")
	}
}

func TestOperatorPrecedence(t *testing.T) {
	sl, err := Parse("2+3*4")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := sl.Expand(100)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// 2+3*4 = 14.
	if !reflect.DeepEqual(got, []uint{14}) {
		t.Errorf("got %v, want [14]", got)
	}
}
