package helper

import (
	"errors"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("rahasia123")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		ok       bool
	}{
		{"match", hash, "rahasia123", true},
		{"quoted hash", `"` + hash + `"`, "rahasia123", true},
		{"wrong password", hash, "salah", false},
		{"empty hash", "", "rahasia123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.hash, tt.password)
			if (err == nil) != tt.ok {
				t.Errorf("VerifyPassword err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("pendek"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("err = %v", err)
	}
}
