package feature

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testCandidate() Candidate {
	return Candidate{
		AccountID:   "acct_000000000000000000000001",
		MerchantID:  "merch_00000000000000000000001",
		Amount:      42.50,
		Category:    "DINING",
		Subtype:     "COFFEE_SHOP",
		Description: "latte",
		PurchasedAt: time.Date(2025, 6, 14, 9, 30, 0, 0, time.UTC), // a Saturday
	}
}

func TestEncodeCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
		want     int
		wantErr  bool
	}{
		{"known", "RETAIL", 0, false},
		{"case insensitive", "dining", 2, false},
		{"free text form", "coffee shop", 0, true},
		{"spaces normalized", " Travel ", 3, false},
		{"unknown", "CRYPTO", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCategory(tt.category)
			if tt.wantErr {
				var ucErr *UnknownCategoryError
				if !errors.As(err, &ucErr) {
					t.Fatalf("EncodeCategory(%q) error = %v, want UnknownCategoryError", tt.category, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeCategory(%q) unexpected error: %v", tt.category, err)
			}
			if got != tt.want {
				t.Errorf("EncodeCategory(%q) = %d, want %d", tt.category, got, tt.want)
			}
		})
	}
}

func TestEncodeSubtype(t *testing.T) {
	if _, err := EncodeSubtype("DINING", "COFFEE_SHOP"); err != nil {
		t.Fatalf("valid subtype rejected: %v", err)
	}
	if _, err := EncodeSubtype("dining", "coffee_shop"); err != nil {
		t.Fatalf("case-insensitive subtype rejected: %v", err)
	}

	// A subtype only belongs to its declared category.
	_, err := EncodeSubtype("GROCERY", "COFFEE_SHOP")
	var ucErr *UnknownCategoryError
	if !errors.As(err, &ucErr) {
		t.Fatalf("cross-category subtype error = %v, want UnknownCategoryError", err)
	}
	if ucErr.Subtype != "COFFEE_SHOP" {
		t.Errorf("error subtype = %q, want COFFEE_SHOP", ucErr.Subtype)
	}
}

func TestDeriveSchemaOrder(t *testing.T) {
	d := NewDeriver(DefaultSchema(), WithSeed(1))
	v, err := d.Derive(context.Background(), testCandidate(), Context{})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	want := []string{FieldAmount, FieldCategory, FieldType, FieldTxCount, FieldSpend}
	fields := v.Fields()
	if len(fields) < len(want) {
		t.Fatalf("vector has %d fields, want at least %d", len(fields), len(want))
	}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("field[%d] = %q, want %q", i, fields[i], f)
		}
	}

	if got := v.Float(FieldAmount); got != 42.50 {
		t.Errorf("amount = %v, want 42.50", got)
	}
	if got := v.Float(FieldCategory); got != 2 {
		t.Errorf("encoded category = %v, want 2", got)
	}
}

func TestDeriveInvalidAmount(t *testing.T) {
	d := NewDeriver(DefaultSchema())
	for _, amount := range []float64{0, -1} {
		c := testCandidate()
		c.Amount = amount
		if _, err := d.Derive(context.Background(), c, Context{}); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount=%v: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestDeriveUnknownCategory(t *testing.T) {
	d := NewDeriver(DefaultSchema())
	c := testCandidate()
	c.Category = "DARKWEB"

	_, err := d.Derive(context.Background(), c, Context{})
	var ucErr *UnknownCategoryError
	if !errors.As(err, &ucErr) {
		t.Fatalf("err = %v, want UnknownCategoryError", err)
	}
}

func TestDeriveSyntheticDeterministic(t *testing.T) {
	d := NewDeriver(DefaultSchema(), WithSeed(7))
	c := testCandidate()

	v1, err := d.Derive(context.Background(), c, Context{})
	if err != nil {
		t.Fatalf("first derive: %v", err)
	}
	v2, err := d.Derive(context.Background(), c, Context{})
	if err != nil {
		t.Fatalf("second derive: %v", err)
	}

	count, _ := v1.Get(FieldTxCount)
	spend, _ := v1.Get(FieldSpend)
	if !count.Synthetic || !spend.Synthetic {
		t.Fatal("placeholder counters not tagged synthetic")
	}
	if count.Value < 0 || count.Value >= syntheticCountMax {
		t.Errorf("synthetic count %v out of [0,%d)", count.Value, syntheticCountMax)
	}
	if spend.Value < syntheticSpendMin || spend.Value >= syntheticSpendMax {
		t.Errorf("synthetic spend %v out of [%d,%d)", spend.Value, syntheticSpendMin, syntheticSpendMax)
	}

	for _, f := range v1.Fields() {
		if v1.Float(f) != v2.Float(f) {
			t.Errorf("field %q not stable across derives: %v vs %v", f, v1.Float(f), v2.Float(f))
		}
	}

	// A different candidate draws different placeholders.
	c2 := c
	c2.Amount = 99.99
	v3, err := d.Derive(context.Background(), c2, Context{})
	if err != nil {
		t.Fatalf("third derive: %v", err)
	}
	if v3.Float(FieldTxCount) == v1.Float(FieldTxCount) && v3.Float(FieldSpend) == v1.Float(FieldSpend) {
		t.Error("distinct candidates drew identical placeholders")
	}
}

func TestDeriveCallerSuppliedCounters(t *testing.T) {
	d := NewDeriver(DefaultSchema())
	count := 3
	spend := 120.0

	v, err := d.Derive(context.Background(), testCandidate(), Context{
		TxCountLastHour: &count,
		SpendLastHour:   &spend,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	cv, _ := v.Get(FieldTxCount)
	if cv.Synthetic || cv.Value != 3 {
		t.Errorf("tx count = %+v, want real value 3", cv)
	}
	sv, _ := v.Get(FieldSpend)
	if sv.Synthetic || sv.Value != 120 {
		t.Errorf("spend = %+v, want real value 120", sv)
	}
	if len(v.SyntheticFields()) != 0 {
		t.Errorf("synthetic fields = %v, want none", v.SyntheticFields())
	}
}

type stubHistory struct {
	h     History
	found bool
	err   error
}

func (s stubHistory) LookupHistory(context.Context, string) (History, bool, error) {
	return s.h, s.found, s.err
}

func TestDeriveHistoryProvider(t *testing.T) {
	d := NewDeriver(DefaultSchema(), WithHistory(stubHistory{
		h:     History{Count: 8, Spend: 900},
		found: true,
	}))

	v, err := d.Derive(context.Background(), testCandidate(), Context{})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if got := v.Float(FieldTxCount); got != 8 {
		t.Errorf("tx count = %v, want 8", got)
	}
	if cv, _ := v.Get(FieldTxCount); cv.Synthetic {
		t.Error("history-backed count tagged synthetic")
	}
}

func TestDeriveHistoryError(t *testing.T) {
	wantErr := errors.New("db gone")
	d := NewDeriver(DefaultSchema(), WithHistory(stubHistory{err: wantErr}))

	_, err := d.Derive(context.Background(), testCandidate(), Context{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestDeriveMissingRatio(t *testing.T) {
	schema, err := NewSchema(FieldAmount, FieldCategory, FieldType, FieldTxCount, FieldSpend, FieldRatio)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	d := NewDeriver(schema)

	_, err = d.Derive(context.Background(), testCandidate(), Context{})
	var mfErr *MissingFeatureError
	if !errors.As(err, &mfErr) {
		t.Fatalf("err = %v, want MissingFeatureError", err)
	}
	if mfErr.Field != FieldRatio {
		t.Errorf("missing field = %q, want %q", mfErr.Field, FieldRatio)
	}
}

func TestDeriveOptionalFields(t *testing.T) {
	d := NewDeriver(DefaultSchema())
	avg := 50.0
	dist := 0.9

	v, err := d.Derive(context.Background(), testCandidate(), Context{
		RollingAvg: &avg,
		DistanceKm: &dist,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if got := v.Float(FieldRatio); got != 42.50/50.0 {
		t.Errorf("ratio = %v, want %v", got, 42.50/50.0)
	}
	if got := v.Float(FieldDistance); got != 0.9 {
		t.Errorf("distance = %v, want 0.9", got)
	}
	if got := v.Float(FieldWeekend); got != 1 {
		t.Errorf("weekend = %v, want 1 for a Saturday", got)
	}
	if got := v.Float(FieldHour); got != 9 {
		t.Errorf("hour = %v, want 9", got)
	}
}

func TestNewSchemaRejectsUnknownField(t *testing.T) {
	if _, err := NewSchema(FieldAmount, "shoe_size"); err == nil {
		t.Fatal("schema with unknown field accepted")
	}
	if _, err := NewSchema(FieldAmount, FieldAmount); err == nil {
		t.Fatal("schema with duplicate field accepted")
	}
	if _, err := NewSchema(); err == nil {
		t.Fatal("empty schema accepted")
	}
}
