package usecase

import (
	"strings"

	"github.com/samber/lo"

	"scribedesk/internal/domain"
	"scribedesk/internal/tasks"
)

// BuildMessages assembles a generation request from the checked, live units
// in their current order. Units still showing a transcription placeholder are
// skipped. The system message is omitted when empty.
func BuildMessages(system string, instruction string, units []domain.Unit) []domain.Message {
	var messages []domain.Message
	if strings.TrimSpace(system) != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: strings.TrimSpace(system)})
	}

	parts := lo.FilterMap(units, func(u domain.Unit, _ int) (string, bool) {
		content := strings.TrimSpace(u.Content)
		return content, u.Checked && !u.SoftDeleted && content != "" && !tasks.InProgress(content)
	})
	if text := strings.TrimSpace(instruction); text != "" {
		parts = append([]string{text}, parts...)
	}

	return append(messages, domain.Message{Role: domain.RoleUser, Content: strings.Join(parts, "\n\n")})
}
