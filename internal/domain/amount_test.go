package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "500", want: "500"},
		{name: "zero", input: "0", want: "0"},
		{name: "beyond int64", input: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "plus sign", input: "+5", wantErr: true},
		{name: "decimal point", input: "1.5", wantErr: true},
		{name: "hex", input: "0x10", wantErr: true},
		{name: "whitespace", input: " 5", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAmount(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) succeeded, want error", tc.input)
				}
				if !errors.Is(err, ErrBadAmount) {
					t.Fatalf("ParseAmount(%q) error = %v, want ErrBadAmount", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) returned error: %v", tc.input, err)
			}
			if a.String() != tc.want {
				t.Fatalf("ParseAmount(%q) = %q, want %q", tc.input, a.String(), tc.want)
			}
		})
	}
}

func TestAmountAddDoesNotMutateOperands(t *testing.T) {
	a := MustAmount("9223372036854775807")
	b := MustAmount("9223372036854775807")

	sum := a.Add(b)

	if sum.String() != "18446744073709551614" {
		t.Fatalf("sum = %q, want %q", sum.String(), "18446744073709551614")
	}
	if a.String() != "9223372036854775807" || b.String() != "9223372036854775807" {
		t.Fatalf("operands mutated: a=%q b=%q", a.String(), b.String())
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	encoded, err := json.Marshal(payload{Amount: MustAmount("340282366920938463463374607431768211456")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"amount":"340282366920938463463374607431768211456"}`
	if string(encoded) != want {
		t.Fatalf("marshal = %s, want %s", encoded, want)
	}

	var decoded payload
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Amount.String() != "340282366920938463463374607431768211456" {
		t.Fatalf("round trip = %q, want original value", decoded.Amount.String())
	}
}

func TestAmountUnmarshalRejectsBareNumbers(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`1000`), &a); err == nil {
		t.Fatal("unmarshal of bare number succeeded, want error")
	}
}
