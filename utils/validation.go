package utils

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	uppercase   = regexp.MustCompile(`[A-Z]`)
	lowercase   = regexp.MustCompile(`[a-z]`)
	digit       = regexp.MustCompile(`\d`)
	specialChar = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`)
)

func ValidateEmail(email string) error {
	addr, err := netmail.ParseAddress(email)
	if err != nil {
		return err
	}
	// reject "Name <a@b>" forms, only a bare address is accepted
	if addr.Address != strings.TrimSpace(email) {
		return errors.New("email must be a bare address")
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	if len(password) > 72 {
		return fmt.Errorf("password must be at most 72 bytes long")
	}
	if !uppercase.MatchString(password) {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !lowercase.MatchString(password) {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !digit.MatchString(password) {
		return fmt.Errorf("password must contain at least one digit")
	}
	if !specialChar.MatchString(password) {
		return fmt.Errorf("password must contain at least one special character")
	}
	return nil
}

func ValidateTaskInput(title string) error {
	if len(strings.TrimSpace(title)) == 0 || utf8.RuneCountInString(title) > 255 {
		return errors.New("title must be between 1 and 255 characters")
	}
	if strings.ContainsAny(title, "<>") {
		return errors.New("title contains invalid characters")
	}
	return nil
}

func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > 2000 {
		return errors.New("description must be at most 2000 characters")
	}
	if strings.ContainsAny(description, "<>") {
		return errors.New("description contains invalid characters")
	}
	return nil
}

func ValidateDisplayName(name string) error {
	if utf8.RuneCountInString(name) > 100 {
		return errors.New("display name must be at most 100 characters")
	}
	if strings.ContainsAny(name, "<>") {
		return errors.New("display name contains invalid characters")
	}
	return nil
}

func SamePassword(password string, confirmedPassword string) bool {
	return password == confirmedPassword
}
