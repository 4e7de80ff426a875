// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidCode проверяет код товара: от 1 до 10 букв и цифр.
func IsValidCode(code string) bool {
	if code == "" || len(code) > 10 {
		return false
	}

	for _, ch := range code {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}

// IsValidUsername проверяет имя пользователя: до 150 символов,
// буквы, цифры и символы @/./+/-/_.
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 150 {
		return false
	}

	for _, ch := range username {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			continue
		}
		switch ch {
		case '@', '.', '+', '-', '_':
		default:
			return false
		}
	}

	return true
}

// IsValidPhone проверяет номер телефона: до 20 символов,
// цифры, пробелы и символы +/-/(/). Пустой номер допустим.
func IsValidPhone(phone string) bool {
	if len(phone) > 20 {
		return false
	}

	for _, ch := range phone {
		if unicode.IsDigit(ch) {
			continue
		}
		switch ch {
		case '+', '-', ' ', '(', ')':
		default:
			return false
		}
	}

	return true
}
