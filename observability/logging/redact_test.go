package logging

import "testing"

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"mnemonic", "Seed", " API_KEY ", "bolt11", "preimage"} {
		if !IsSensitive(key) {
			t.Fatalf("expected %q to be sensitive", key)
		}
	}
	for _, key := range []string{"amount_sats", "network", "claim"} {
		if IsSensitive(key) {
			t.Fatalf("expected %q to be safe", key)
		}
	}
}

func TestMaskField(t *testing.T) {
	masked := MaskField("mnemonic", "abandon abandon about")
	if masked.Value.String() != RedactedValue {
		t.Fatalf("mnemonic not masked: %s", masked.Value.String())
	}
	plain := MaskField("network", "mainnet")
	if plain.Value.String() != "mainnet" {
		t.Fatalf("safe field altered: %s", plain.Value.String())
	}
	empty := MaskField("mnemonic", "")
	if empty.Value.String() != "" {
		t.Fatalf("empty value altered: %s", empty.Value.String())
	}
}
