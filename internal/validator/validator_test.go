package validator

import "testing"

func TestValidatePhone(t *testing.T) {
	valid := []string{"+27821234567", "+27600000000"}
	for _, phone := range valid {
		if err := ValidatePhone(phone); err != nil {
			t.Fatalf("ValidatePhone(%q) = %v", phone, err)
		}
	}
	invalid := []string{"", "0821234567", "+2782123456", "+278212345678", "+27 82 123 4567", "+1821234567x"}
	for _, phone := range invalid {
		if err := ValidatePhone(phone); err == nil {
			t.Fatalf("ValidatePhone(%q) accepted", phone)
		}
	}
}

func TestValidatePIN(t *testing.T) {
	for _, pin := range []string{"1234", "123456"} {
		if err := ValidatePIN(pin); err != nil {
			t.Fatalf("ValidatePIN(%q) = %v", pin, err)
		}
	}
	for _, pin := range []string{"", "123", "1234567", "12ab", "12 34"} {
		if err := ValidatePIN(pin); err == nil {
			t.Fatalf("ValidatePIN(%q) accepted", pin)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName(""); err != nil {
		t.Fatalf("empty name should be allowed, got %v", err)
	}
	if err := ValidateName("Thandi Nkosi"); err != nil {
		t.Fatalf("ValidateName = %v", err)
	}
	if err := ValidateName("1Thandi"); err == nil {
		t.Fatal("leading digit accepted")
	}
}

func TestValidateMeterNumber(t *testing.T) {
	if err := ValidateMeterNumber("MTR-001234"); err != nil {
		t.Fatalf("ValidateMeterNumber = %v", err)
	}
	for _, meter := range []string{"", "abc", "mtr-001234", "MTR 001"} {
		if err := ValidateMeterNumber(meter); err == nil {
			t.Fatalf("ValidateMeterNumber(%q) accepted", meter)
		}
	}
}
