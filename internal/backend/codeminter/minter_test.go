package codeminter

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
)

func TestMint_URLAndPNG(t *testing.T) {
	m := New("https://kiosk.example.com/", 200, qrcode.Medium)

	code, err := m.Mint(context.Background(), "0190a6f0-1111-7000-8000-000000000001")
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	want := "https://kiosk.example.com/retrieve?id=0190a6f0-1111-7000-8000-000000000001"
	if code.URL != want {
		t.Errorf("Expected URL %s, got %s", want, code.URL)
	}
	img, err := png.Decode(bytes.NewReader(code.PNG))
	if err != nil {
		t.Fatalf("Expected a decodable PNG, got %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 200 {
		t.Errorf("Expected 200x200 code, got %v", img.Bounds())
	}
}

func TestMint_Deterministic(t *testing.T) {
	m := New("https://kiosk.example.com", 0, qrcode.High)
	a, err := m.Mint(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	b, err := m.Mint(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if a.URL != b.URL || !bytes.Equal(a.PNG, b.PNG) {
		t.Error("Expected identical codes for the same id")
	}
}

func TestMint_EmptyID(t *testing.T) {
	m := New("https://kiosk.example.com", 0, qrcode.Medium)
	for _, id := range []string{"", "   "} {
		if _, err := m.Mint(context.Background(), id); !errors.Is(err, ErrEmptyID) {
			t.Errorf("Mint(%q): expected ErrEmptyID, got %v", id, err)
		}
	}
}

func TestMint_OversizedContentIsEncodingError(t *testing.T) {
	m := New("https://kiosk.example.com", 0, qrcode.Highest)
	_, err := m.Mint(context.Background(), strings.Repeat("x", 4000))
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("Expected *EncodingError, got %T: %v", err, err)
	}
}

func TestParseRecoveryLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    qrcode.RecoveryLevel
		wantErr bool
	}{
		{"", qrcode.Medium, false},
		{"low", qrcode.Low, false},
		{"HIGH", qrcode.High, false},
		{"highest", qrcode.Highest, false},
		{"ultra", qrcode.Medium, true},
	}
	for _, tt := range tests {
		got, err := ParseRecoveryLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRecoveryLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRecoveryLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
