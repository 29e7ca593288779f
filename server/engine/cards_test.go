package engine

import (
	"errors"
	"testing"
)

func TestNewDeckIsPermutation(t *testing.T) {
	d, err := NewDeck()
	if err != nil {
		t.Fatalf("new deck: %v", err)
	}
	if d.Remaining() != 52 {
		t.Fatalf("remaining = %d, want 52", d.Remaining())
	}
	cs, err := d.Deal(52)
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if err := CheckDistinct(cs); err != nil {
		t.Fatalf("deck has repeats: %v", err)
	}
}

func TestDealExhausted(t *testing.T) {
	d, _ := NewDeck()
	if _, err := d.Deal(50); err != nil {
		t.Fatalf("deal 50: %v", err)
	}
	if _, err := d.Deal(3); !errors.Is(err, ErrDeckExhausted) {
		t.Fatalf("err = %v, want ErrDeckExhausted", err)
	}
	if d.Remaining() != 2 {
		t.Fatalf("failed deal must not consume cards, remaining = %d", d.Remaining())
	}
}

func TestShuffleVaries(t *testing.T) {
	a, _ := NewDeck()
	b, _ := NewDeck()
	ac, _ := a.Deal(52)
	bc, _ := b.Deal(52)
	same := true
	for i := range ac {
		if ac[i] != bc[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("two shuffles produced the same order")
	}
}

func TestStackedDeck(t *testing.T) {
	top := MustParseCards("As Kd 7c")
	d, err := NewStackedDeck(top)
	if err != nil {
		t.Fatalf("stacked: %v", err)
	}
	got, _ := d.Deal(3)
	for i := range top {
		if got[i] != top[i] {
			t.Fatalf("card %d = %v, want %v", i, got[i], top[i])
		}
	}
	if d.Remaining() != 49 {
		t.Fatalf("remaining = %d, want 49", d.Remaining())
	}
	if _, err := NewStackedDeck(MustParseCards("As As")); !errors.Is(err, ErrDuplicateCard) {
		t.Fatalf("err = %v, want ErrDuplicateCard", err)
	}
}

func TestParseCard(t *testing.T) {
	tests := []struct {
		in   string
		want Card
	}{
		{"As", Card{Ace, Spades}},
		{"10h", Card{10, Hearts}},
		{"Td", Card{10, Diamonds}},
		{"2c", Card{2, Clubs}},
	}
	for _, tt := range tests {
		got, err := ParseCard(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseCard(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
		if tt.in != "10h" && got.String() != tt.in {
			t.Fatalf("String() = %q, want %q", got.String(), tt.in)
		}
	}
	for _, bad := range []string{"", "1s", "Ax", "11h"} {
		if _, err := ParseCard(bad); err == nil {
			t.Fatalf("ParseCard(%q) should fail", bad)
		}
	}
}
