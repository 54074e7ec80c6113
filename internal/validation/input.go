// Package validation проверяет ссылки на медиафайлы, которые клиент и мастер прикладывают к заявке.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	MaxMediaURLLength = 500
	// MediaPathPrefix — префикс файлов, загруженных в собственное хранилище сервиса.
	MediaPathPrefix = "/media/"
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateMediaURL принимает абсолютную http(s)-ссылку или путь во внутреннем хранилище.
func ValidateMediaURL(link string) error {
	linkStr := strings.TrimSpace(link)
	if linkStr == "" {
		return fmt.Errorf("ссылка не может быть пустой")
	}
	if err := ValidateLength("ссылка", linkStr, 0, MaxMediaURLLength); err != nil {
		return err
	}

	if strings.HasPrefix(linkStr, MediaPathPrefix) {
		if strings.Contains(linkStr, "..") {
			return fmt.Errorf("путь к файлу не может содержать ..")
		}
		return nil
	}

	parsedURL, err := url.Parse(linkStr)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}
	return nil
}

// ValidateMediaURLs проверяет список ссылок и возвращает номер первой некорректной.
func ValidateMediaURLs(links []string) (int, error) {
	for i, link := range links {
		if err := ValidateMediaURL(link); err != nil {
			return i, err
		}
	}
	return -1, nil
}
