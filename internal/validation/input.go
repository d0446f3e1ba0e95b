package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinProjectTitleLength       = 3
	MaxProjectTitleLength       = 200
	MinProjectDescriptionLength = 10
	MaxProjectDescriptionLength = 5000
	MaxCategoryLength           = 100
	MaxMilestoneTitleLength     = 200
	MaxMilestoneTextLength      = 5000
	MaxNotesLength              = 2000
	MaxDeliverablesCount        = 20
	MaxLinkLength               = 500
	MaxEvidenceCount            = 10
	MaxFilenameLength           = 255
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

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateProjectTitle проверяет заголовок проекта.
func ValidateProjectTitle(title string) error {
	if err := ValidateNonEmpty("заголовок", title); err != nil {
		return err
	}
	return ValidateLength("заголовок", strings.TrimSpace(title), MinProjectTitleLength, MaxProjectTitleLength)
}

// ValidateProjectDescription проверяет описание проекта.
func ValidateProjectDescription(description string) error {
	if err := ValidateNonEmpty("описание", description); err != nil {
		return err
	}
	return ValidateLength("описание", strings.TrimSpace(description), MinProjectDescriptionLength, MaxProjectDescriptionLength)
}

func ValidateMilestoneText(title, description, criteria string) error {
	if err := ValidateLength("название этапа", strings.TrimSpace(title), 1, MaxMilestoneTitleLength); err != nil {
		return err
	}
	if err := ValidateLength("описание этапа", description, 0, MaxMilestoneTextLength); err != nil {
		return err
	}
	return ValidateLength("критерии приёмки", criteria, 0, MaxMilestoneTextLength)
}

// ValidateNotes проверяет комментарий к действию (сдача работы, доработка, решение).
func ValidateNotes(fieldName, notes string) error {
	return ValidateLength(fieldName, notes, 0, MaxNotesLength)
}

// ValidateLink проверяет внешнюю ссылку.
func ValidateLink(link string) error {
	linkStr := strings.TrimSpace(link)

	if err := ValidateLength("ссылка", linkStr, 1, MaxLinkLength); err != nil {
		return err
	}

	// Проверка формата URL
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

// ValidateDeliverables проверяет ссылки на результаты работы.
func ValidateDeliverables(links []string) error {
	if len(links) > MaxDeliverablesCount {
		return fmt.Errorf("можно указать не более %d результатов", MaxDeliverablesCount)
	}
	for _, link := range links {
		if err := ValidateLink(link); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFilename проверяет имя файла доказательства.
func ValidateFilename(name string) error {
	name = strings.TrimSpace(name)
	if err := ValidateLength("имя файла", name, 1, MaxFilenameLength); err != nil {
		return err
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("имя файла не должно содержать путь")
	}
	return nil
}
