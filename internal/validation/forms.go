// Package validation содержит функции валидации входных данных киоска и HTTP-запросов.
package validation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	phonePattern  = regexp.MustCompile(`^[0-9+\-\s()]+$`)
	volumePattern = regexp.MustCompile(`^\d+\.?\d*$`)
)

const (
	// MinPasswordLength задаёт минимальную длину пароля при регистрации.
	MinPasswordLength = 6
	// MaxPasswordBytes задаёт максимальную длину пароля в байтах, которую принимает bcrypt.
	MaxPasswordBytes = 72
)

// Error описывает ошибку заполнения формы. Показывается пользователю и не уходит в сеть.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func fail(msg string) error {
	return &Error{Message: msg}
}

// ValidateRegistration проверяет форму регистрации в том порядке, в котором пользователь видит ошибки.
func ValidateRegistration(email, phone, password, confirm string) error {
	if email == "" || phone == "" || password == "" || confirm == "" {
		return fail("Please fill in all fields")
	}
	if !IsEmail(email) {
		return fail("Please enter a valid email address")
	}
	if !phonePattern.MatchString(phone) {
		return fail("Please enter a valid phone number")
	}
	if len(password) < MinPasswordLength {
		return fail("Password must be at least 6 characters")
	}
	if len(password) > MaxPasswordBytes {
		return fail("Password must be at most 72 bytes")
	}
	if password != confirm {
		return fail("Passwords do not match")
	}
	return nil
}

// ValidateLogin проверяет форму входа. Идентификатором служит email или номер телефона.
func ValidateLogin(identifier, password string) error {
	if identifier == "" || password == "" {
		return fail("Please fill in all fields")
	}
	if !IsEmail(identifier) && !phonePattern.MatchString(identifier) {
		return fail("Please enter a valid email")
	}
	return nil
}

// IsEmail выполняет ту же упрощённую проверку, что и форма: наличие символа '@'.
func IsEmail(s string) bool {
	return strings.Contains(s, "@")
}

// IsVolumeInput сообщает, допустима ли строка в поле объёма: пустая строка
// или цифры с не более чем одной десятичной точкой.
func IsVolumeInput(s string) bool {
	return s == "" || volumePattern.MatchString(s)
}

// ParseVolume разбирает введённый объём и возвращает его, только если он больше нуля.
func ParseVolume(s string) (float64, bool) {
	if s == "" || !volumePattern.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
