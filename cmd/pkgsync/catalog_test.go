package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	in := `
packages:
  - name: Starter
    credits: 3
    price: "299"
  - name: " Pro "
    credits: 30
    price: "1999.50"
    active: false
`

	got, err := parseCatalog(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("want 2 packages, got %d", len(got))
	}

	if got[0].Name != "Starter" || got[0].CreditsGranted != 3 || got[0].Price.StringFixed(2) != "299.00" || !got[0].IsActive {
		t.Fatalf("unexpected first package: %+v", got[0])
	}

	if got[1].Name != "Pro" || got[1].IsActive {
		t.Fatalf("unexpected second package: %+v", got[1])
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"empty", `packages: []`},
		{"unknown field", "packages:\n  - name: A\n    credits: 1\n    price: \"1\"\n    colour: red\n"},
		{"no name", "packages:\n  - credits: 1\n    price: \"1\"\n"},
		{"zero credits", "packages:\n  - name: A\n    credits: 0\n    price: \"1\"\n"},
		{"bad price", "packages:\n  - name: A\n    credits: 1\n    price: cheap\n"},
		{"negative price", "packages:\n  - name: A\n    credits: 1\n    price: \"-5\"\n"},
		{"too many decimals", "packages:\n  - name: A\n    credits: 1\n    price: \"1.999\"\n"},
		{"duplicate", "packages:\n  - name: A\n    credits: 1\n    price: \"1\"\n  - name: A\n    credits: 1\n    price: \"2\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseCatalog(strings.NewReader(tt.in))
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("want ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestExampleCatalogIsValid(t *testing.T) {
	t.Parallel()

	f, err := os.Open("catalog.example.yaml")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := parseCatalog(f)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var buf bytes.Buffer
	renderPackages(&buf, got)

	if !strings.Contains(buf.String(), "Business") || !strings.Contains(buf.String(), "799.00") {
		t.Fatalf("rendered table missing rows:\n%s", buf.String())
	}
}
