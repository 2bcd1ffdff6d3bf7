package domain

import (
	"math"
	"testing"
	"time"
)

func book(symbol, venue string, bid, ask float64) Orderbook {
	return Orderbook{
		Symbol:    symbol,
		Venue:     venue,
		Timestamp: time.Now(),
		Bids:      []BookLevel{{Price: bid, Quantity: 1}},
		Asks:      []BookLevel{{Price: ask, Quantity: 1}},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name          string
		bookA         Orderbook
		bookB         Orderbook
		wantOK        bool
		wantDirection SpreadDirection
		wantSpreadPct float64
	}{
		{
			name:          "b_over_a_favorable",
			bookA:         book("BTC-PERP", "A", 42000, 42010),
			bookB:         book("BTC-PERP", "B", 42100, 42110),
			wantOK:        true,
			wantDirection: DirectionBOverA,
			wantSpreadPct: (42100.0 - 42010.0) / 42010.0 * 100,
		},
		{
			name:          "a_over_b_favorable",
			bookA:         book("BTC-PERP", "A", 42110, 42120),
			bookB:         book("BTC-PERP", "B", 42000, 42010),
			wantOK:        true,
			wantDirection: DirectionAOverB,
			wantSpreadPct: (42110.0 - 42010.0) / 42010.0 * 100,
		},
		{
			name:          "missing_bid_a",
			bookA:         Orderbook{Asks: []BookLevel{{Price: 100, Quantity: 1}}},
			bookB:         book("x", "B", 99, 101),
			wantOK:        false,
		},
		{
			name:          "missing_ask_b",
			bookA:         book("x", "A", 99, 101),
			bookB:         Orderbook{Bids: []BookLevel{{Price: 100, Quantity: 1}}},
			wantOK:        false,
		},
		{
			name:          "zero_price_rejected",
			bookA:         book("x", "A", 0, 101),
			bookB:         book("x", "B", 99, 101),
			wantOK:        false,
		},
		{
			name:          "exact_tie_keeps_a_over_b",
			bookA:         book("x", "A", 100, 100),
			bookB:         book("x", "B", 100, 100),
			wantOK:        true,
			wantDirection: DirectionAOverB,
			wantSpreadPct: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Calculate(tt.bookA, tt.bookB)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Direction != tt.wantDirection {
				t.Errorf("Direction = %v, want %v", got.Direction, tt.wantDirection)
			}
			if !almostEqual(got.SpreadPct, tt.wantSpreadPct) {
				t.Errorf("SpreadPct = %v, want %v", got.SpreadPct, tt.wantSpreadPct)
			}
		})
	}
}

// TestCalculate_NoCrossedBookDirection verifies that a positive
// reported spread always implies the chosen direction's long leg is priced
// below its short leg, never the reverse.
func TestCalculate_NoCrossedBookDirection(t *testing.T) {
	bookA := book("x", "A", 100, 100.5)
	bookB := book("x", "B", 100.2, 100.7)

	result, ok := Calculate(bookA, bookB)
	if !ok {
		t.Fatal("expected ok")
	}
	if result.SpreadPct <= 0 {
		return
	}
	switch result.Direction {
	case DirectionAOverB:
		if result.AskB >= result.BidA {
			t.Errorf("A_over_B reported profitable but askB %v >= bidA %v", result.AskB, result.BidA)
		}
	case DirectionBOverA:
		if result.AskA >= result.BidB {
			t.Errorf("B_over_A reported profitable but askA %v >= bidB %v", result.AskA, result.BidB)
		}
	}
}

// TestCalculate_ThresholdMonotonicity verifies that widening the
// favorable leg's price gap strictly increases the reported spread.
func TestCalculate_ThresholdMonotonicity(t *testing.T) {
	bookA := book("x", "A", 42000, 42010)
	narrow := book("x", "B", 42050, 42060)
	wide := book("x", "B", 42150, 42160)

	narrowResult, ok := Calculate(bookA, narrow)
	if !ok {
		t.Fatal("expected ok")
	}
	wideResult, ok := Calculate(bookA, wide)
	if !ok {
		t.Fatal("expected ok")
	}
	if wideResult.SpreadPct <= narrowResult.SpreadPct {
		t.Errorf("widening the gap did not increase spread: narrow=%v wide=%v",
			narrowResult.SpreadPct, wideResult.SpreadPct)
	}
}

func TestCalculate_Symmetry(t *testing.T) {
	bookA := book("x", "A", 42000, 42010)
	bookB := book("x", "B", 42100, 42110)

	swapped, ok1 := Calculate(bookB, bookA)
	original, ok2 := Calculate(bookA, bookB)
	if !ok1 || !ok2 {
		t.Fatal("expected both ok")
	}
	if swapped.Direction == original.Direction {
		t.Errorf("swapping venues did not flip the favorable direction: both %v", original.Direction)
	}
	if !almostEqual(swapped.SpreadPct, original.SpreadPct) {
		t.Errorf("swapped spread magnitude = %v, want %v", swapped.SpreadPct, original.SpreadPct)
	}
}

// TestSpreadDirection_RoundTrip verifies that marshal/unmarshal
// round-trips for known directions, and unknown encoded values decode to
// DirectionNone rather than erroring.
func TestSpreadDirection_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   SpreadDirection
		want SpreadDirection
	}{
		{"a_over_b", DirectionAOverB, DirectionAOverB},
		{"b_over_a", DirectionBOverA, DirectionBOverA},
		{"none", DirectionNone, DirectionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := tt.in.MarshalText()
			if err != nil {
				t.Fatalf("MarshalText: %v", err)
			}
			var out SpreadDirection
			if err := out.UnmarshalText(text); err != nil {
				t.Fatalf("UnmarshalText: %v", err)
			}
			if out != tt.want {
				t.Errorf("round trip = %v, want %v", out, tt.want)
			}
		})
	}

	var unknown SpreadDirection
	if err := unknown.UnmarshalText([]byte("NOT_A_DIRECTION")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if unknown != DirectionNone {
		t.Errorf("unknown direction decoded to %v, want DirectionNone", unknown)
	}
}

func TestSpreadDirection_Opposite(t *testing.T) {
	if DirectionAOverB.Opposite() != DirectionBOverA {
		t.Errorf("Opposite(A_over_B) = %v, want B_over_A", DirectionAOverB.Opposite())
	}
	if DirectionBOverA.Opposite() != DirectionAOverB {
		t.Errorf("Opposite(B_over_A) = %v, want A_over_B", DirectionBOverA.Opposite())
	}
	if DirectionNone.Opposite() != DirectionNone {
		t.Errorf("Opposite(None) = %v, want None", DirectionNone.Opposite())
	}
}

func TestReverseSpreadPct(t *testing.T) {
	bookA := book("x", "A", 42080, 42085)
	bookB := book("x", "B", 42090, 42095)

	got, ok := ReverseSpreadPct(bookA, bookB, DirectionBOverA)
	if !ok {
		t.Fatal("expected ok")
	}
	want := (42080.0 - 42095.0) / 42095.0 * 100
	if !almostEqual(got, want) {
		t.Errorf("ReverseSpreadPct(B_over_A) = %v, want %v", got, want)
	}

	got, ok = ReverseSpreadPct(bookA, bookB, DirectionAOverB)
	if !ok {
		t.Fatal("expected ok")
	}
	want = (42090.0 - 42085.0) / 42085.0 * 100
	if !almostEqual(got, want) {
		t.Errorf("ReverseSpreadPct(A_over_B) = %v, want %v", got, want)
	}
}

func TestReverseSpreadPct_IncompleteBook(t *testing.T) {
	bookA := Orderbook{}
	bookB := book("x", "B", 100, 101)

	if _, ok := ReverseSpreadPct(bookA, bookB, DirectionAOverB); ok {
		t.Error("expected ok = false for incomplete book")
	}
}

func BenchmarkCalculate(b *testing.B) {
	bookA := book("x", "A", 42000, 42010)
	bookB := book("x", "B", 42100, 42110)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Calculate(bookA, bookB)
	}
}
