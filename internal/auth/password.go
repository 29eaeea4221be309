// Package auth содержит выпуск и проверку bearer-токенов, хеширование паролей
// и список отозванных токенов.
package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes ограничивает длину пароля: bcrypt не принимает более длинные входные данные.
const MaxPasswordBytes = 72

// ErrPasswordTooLong возвращается для пароля длиннее MaxPasswordBytes байт.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("greenfill-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy hash: %v", err))
	}
	return hash
})

// HashPassword возвращает bcrypt-хеш пароля.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сравнивает пароль с bcrypt-хешем.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RejectPassword тратит на пароль столько же времени, сколько CheckPassword, и всегда
// возвращает false. Используется, когда пользователь не найден.
func RejectPassword(password string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
	return false
}
