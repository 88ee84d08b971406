package topics

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateTopicInput describes a new topic as supplied by its creator.
type CreateTopicInput struct {
	Title            string
	Description      string
	Answers          []string
	IsPublic         bool
	IsEditable       bool
	AllowMultiSelect bool
	Tags             []string
}

// Normalize trims free text, drops repeated answers, and cleans tags.
func (input CreateTopicInput) Normalize() CreateTopicInput {
	normalized := input
	normalized.Title = strings.TrimSpace(input.Title)
	normalized.Description = strings.TrimSpace(input.Description)
	normalized.Answers = normalizeAnswers(input.Answers)
	normalized.Tags = NormalizeTags(input.Tags)
	return normalized
}

// Validate checks a normalized input against the topic shape rules.
func (input CreateTopicInput) Validate() error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.Title, validation.Required, validation.RuneLength(1, maxTitleLength)),
		validation.Field(&input.Description, validation.RuneLength(0, maxDescriptionLength)),
		validation.Field(&input.Answers,
			validation.Required.Error("at least 2 distinct answers are required"),
			validation.Length(minAnswers, maxAnswers).Error(fmt.Sprintf("must have between %d and %d distinct answers", minAnswers, maxAnswers)),
			validation.Each(validation.Required.Error("answers cannot be blank"), validation.RuneLength(1, maxAnswerLength)),
		),
		validation.Field(&input.Tags, tagRules()...),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func tagRules() []validation.Rule {
	return []validation.Rule{
		validation.Length(0, maxTags).Error(fmt.Sprintf("maximum %d tags allowed", maxTags)),
		validation.Each(validation.RuneLength(1, maxTagLength).Error(fmt.Sprintf("tags must be %d characters or less", maxTagLength))),
	}
}

// validateTags checks an already normalized tag list.
func validateTags(tags []string) error {
	if err := validation.Validate(tags, tagRules()...); err != nil {
		return fmt.Errorf("%w: tags: %v", ErrValidation, err)
	}
	return nil
}

// normalizeOption trims a proposed answer and checks its bounds.
func normalizeOption(rawOption string) (string, error) {
	option := strings.TrimSpace(rawOption)
	err := validation.Validate(option,
		validation.Required.Error("option cannot be empty"),
		validation.RuneLength(1, maxAnswerLength).Error(fmt.Sprintf("option must be %d characters or less", maxAnswerLength)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return option, nil
}

// normalizeDescription trims a description and checks its bound.
func normalizeDescription(rawDescription string) (string, error) {
	description := strings.TrimSpace(rawDescription)
	if err := validation.Validate(description, validation.RuneLength(0, maxDescriptionLength)); err != nil {
		return "", fmt.Errorf("%w: description: %v", ErrValidation, err)
	}
	return description, nil
}

func normalizeAnswers(rawAnswers []string) []string {
	answers := make([]string, 0, len(rawAnswers))
	seen := make(map[string]struct{}, len(rawAnswers))
	for _, rawAnswer := range rawAnswers {
		answer := strings.TrimSpace(rawAnswer)
		if _, ok := seen[answer]; ok {
			continue
		}
		seen[answer] = struct{}{}
		answers = append(answers, answer)
	}
	return answers
}

// NormalizeTags trims and upper-cases tags, dropping blanks and repeats.
func NormalizeTags(rawTags []string) []string {
	tags := make([]string, 0, len(rawTags))
	seen := make(map[string]struct{}, len(rawTags))
	for _, rawTag := range rawTags {
		tag := strings.ToUpper(strings.TrimSpace(rawTag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
