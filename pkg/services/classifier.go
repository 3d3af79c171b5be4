package services

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/songo-inc/songo-engine/pkg/models"
)

// Classification is the structured interpretation of an assistant reply.
type Classification struct {
	ContentType models.ContentType
	// Payload carries the parsed chart configuration or tabular preview when
	// the reply embeds one.
	Payload map[string]any
	// Content is the reply text with any directive block removed.
	Content string
}

// Classifier decides whether an assistant reply is plain text or carries a
// chart or data directive.
type Classifier interface {
	Classify(content string) Classification
}

// directivePattern matches a fenced block tagged chart or data whose body is
// a JSON object, e.g.:
//
//	```chart
//	{"type": "bar", "x": "month", "y": "revenue"}
//	```
var directivePattern = regexp.MustCompile("(?s)```(chart|data)\\s*\\n(.*?)```")

type fencedClassifier struct{}

// NewClassifier creates the fenced-directive classifier.
func NewClassifier() Classifier {
	return &fencedClassifier{}
}

func (c *fencedClassifier) Classify(content string) Classification {
	m := directivePattern.FindStringSubmatchIndex(content)
	if m == nil {
		return Classification{ContentType: models.ContentTypeText, Content: content}
	}

	tag := content[m[2]:m[3]]
	body := content[m[4]:m[5]]

	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		// Malformed directive, treat the whole reply as text.
		return Classification{ContentType: models.ContentTypeText, Content: content}
	}

	contentType := models.ContentTypeChart
	if tag == "data" {
		contentType = models.ContentTypeData
	}

	remaining := strings.TrimSpace(content[:m[0]] + content[m[1]:])

	return Classification{
		ContentType: contentType,
		Payload:     payload,
		Content:     remaining,
	}
}
