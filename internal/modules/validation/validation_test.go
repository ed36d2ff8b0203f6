package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"giftwave/internal/apperr"
)

func TestCNIC(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		valid bool
		msg   string
	}{
		{"dashed", "35202-1234567-1", true, "CNIC is valid"},
		{"plain", "3520212345671", true, "CNIC is valid"},
		{"underscores and spaces", "35202_1234567 1", true, "CNIC is valid"},
		{"short", "35202-123456-1", false, "CNIC must be exactly 13 digits"},
		{"letters", "35202-12345a7-1", false, "CNIC must contain only numbers"},
		{"zero region", "0020212345671", false, "Invalid province code (0) in CNIC"},
		{"empty", "", false, "CNIC must be exactly 13 digits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CNIC(tc.in)
			if got.Valid != tc.valid || got.Message != tc.msg {
				t.Fatalf("CNIC(%q) = %+v, want valid=%v msg=%q", tc.in, got, tc.valid, tc.msg)
			}
		})
	}
}

func TestFormatCNIC(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"352":               "352",
		"35202":             "35202",
		"352021":            "35202-1",
		"352021234567":      "35202-1234567",
		"3520212345671":     "35202-1234567-1",
		"35202-1234567-1":   "35202-1234567-1",
		"352021234567199":   "35202-1234567-1",
		"35a20 2":           "35202",
	}
	for in, want := range cases {
		if got := FormatCNIC(in); got != want {
			t.Fatalf("FormatCNIC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPhone(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
		msg   string
	}{
		{"+92 300 1234567", true, "Phone number is valid"},
		{"0300-1234567", true, "Phone number is valid"},
		{"3001234567", true, "Phone number is valid"},
		{"0300123456", false, "Phone number must be 10 digits (excluding country code)"},
		{"03001234x67", false, "Phone number must contain only numbers"},
		{"02001234567", false, "Invalid mobile number prefix"},
	}
	for _, tc := range cases {
		got := Phone(tc.in)
		if got.Valid != tc.valid || got.Message != tc.msg {
			t.Fatalf("Phone(%q) = %+v, want valid=%v msg=%q", tc.in, got, tc.valid, tc.msg)
		}
	}
	if NormalizePhone("+92 300 1234567") != NormalizePhone("03001234567") {
		t.Fatalf("expected normalized forms to match")
	}
}

func TestEmailNameAddressGiftURL(t *testing.T) {
	checks := []struct {
		name  string
		got   Result
		valid bool
	}{
		{"email ok", Email("rider@giftwave.pk"), true},
		{"email no tld", Email("rider@giftwave"), false},
		{"email trailing text", Email("a@b.co extra"), false},
		{"name ok", Name("  Ayesha O'Neil-Khan "), true},
		{"name short", Name("A"), false},
		{"name digits", Name("R2D2"), false},
		{"name long", Name(strings.Repeat("a", 51)), false},
		{"address ok", Address("House 12, Street 4, Gulberg"), true},
		{"address short", Address("  Gulberg  "), false},
		{"address long", Address(strings.Repeat("x", 201)), false},
		{"gift ok", GiftName("Roses"), true},
		{"gift short", GiftName(" ab "), false},
		{"gift long", GiftName(strings.Repeat("g", 101)), false},
		{"url empty", URL(""), true},
		{"url https", URL("https://shop.example.com/item/1"), true},
		{"url ftp", URL("ftp://example.com"), false},
		{"city empty", City("   "), false},
	}
	for _, c := range checks {
		if c.got.Valid != c.valid {
			t.Fatalf("%s: got %+v, want valid=%v", c.name, c.got, c.valid)
		}
		if c.got.Message == "" {
			t.Fatalf("%s: empty message", c.name)
		}
	}
	if URL("ftp://example.com").Message != "URL must start with http:// or https://" {
		t.Fatalf("unexpected url message")
	}
}

func TestCheckAndFirst(t *testing.T) {
	if err := Check("giftName", GiftName("Roses")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := First(
		Check("giftName", GiftName("Roses")),
		Check("receiverPhone", Phone("123")),
		Check("receiverName", Name("")),
	)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Field != "receiverPhone" {
		t.Fatalf("expected first failing field, got %s", ve.Field)
	}
}

func TestRegisterRules(t *testing.T) {
	v := validator.New()
	if err := RegisterRules(v); err != nil {
		t.Fatalf("register: %v", err)
	}
	type req struct {
		CNIC  string `validate:"cnic"`
		Phone string `validate:"pkphone"`
		Link  string `validate:"httpurl"`
	}
	if err := v.Struct(req{CNIC: "35202-1234567-1", Phone: "03001234567"}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	err := v.Struct(req{CNIC: "35202-1234567-1", Phone: "0200123456"})
	field, msg, ok := Describe(err)
	if !ok || field != "Phone" {
		t.Fatalf("expected phone failure, got %q %q %v", field, msg, ok)
	}
	if msg != "Phone number must be 10 digits (excluding country code)" {
		t.Fatalf("unexpected message %q", msg)
	}
}
