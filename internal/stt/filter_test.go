package stt

import "testing"

func TestFilterAcceptsNormalText(t *testing.T) {
	f := NewFilter(10, []string{"Terima kasih."})
	ok, reason := f.Accept("What is the weather like today?")
	if !ok {
		t.Fatalf("expected accept, got rejection: %s", reason)
	}
}

func TestFilterRejectsShortText(t *testing.T) {
	f := NewFilter(10, nil)
	for _, text := range []string{"", "   ", "uh", "ok then"} {
		ok, reason := f.Accept(text)
		if ok {
			t.Fatalf("expected %q rejected", text)
		}
		if reason != "too-short" {
			t.Fatalf("expected too-short reason for %q, got %s", text, reason)
		}
	}
}

func TestFilterCountsRunesNotBytes(t *testing.T) {
	f := NewFilter(10, nil)
	// Ten runes, more than ten bytes.
	ok, _ := f.Accept("terima kasih")
	if !ok {
		t.Fatal("expected multi-byte text measured in runes")
	}
}

func TestFilterRejectsHallucination(t *testing.T) {
	f := NewFilter(5, []string{"Terima kasih telah menonton", "Subtitle oleh"})
	ok, reason := f.Accept("terima kasih telah menonton video ini")
	if ok {
		t.Fatal("expected hallucination rejected")
	}
	if reason != "hallucination" {
		t.Fatalf("expected hallucination reason, got %s", reason)
	}
}

func TestFilterHallucinationIsCaseInsensitiveSubstring(t *testing.T) {
	f := NewFilter(5, []string{"subtitle oleh"})
	if ok, _ := f.Accept("...SUBTITLE OLEH komunitas..."); ok {
		t.Fatal("expected case-insensitive substring match")
	}
}
