package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidPIN         = errors.New("pin must be 4 to 6 digits")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidMeterNumber = errors.New("invalid meter number")
)

var (
	// South African numbers in E.164 form, e.g. +27821234567.
	phoneRegex = regexp.MustCompile(`^\+27[0-9]{9}$`)
	pinRegex   = regexp.MustCompile(`^[0-9]{4,6}$`)
	nameRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z '-]{0,49}$`)
	meterRegex = regexp.MustCompile(`^[A-Z0-9-]{4,20}$`)
)

func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

func ValidatePIN(pin string) error {
	if !pinRegex.MatchString(pin) {
		return ErrInvalidPIN
	}
	return nil
}

func ValidateName(name string) error {
	if name == "" {
		return nil
	}
	if !nameRegex.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func ValidateMeterNumber(meterNumber string) error {
	if !meterRegex.MatchString(meterNumber) {
		return ErrInvalidMeterNumber
	}
	return nil
}
