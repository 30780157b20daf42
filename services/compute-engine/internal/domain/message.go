package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType представляет тип сообщения задачи
type MessageType string

const (
	MessageTypeGeneric                       MessageType = "GENERIC"
	MessageTypeInfo                          MessageType = "INFO"
	MessageTypeSuggestDeveloperEdition       MessageType = "SUGGEST_DEVELOPER_EDITION_UPGRADE"
	MessageTypeGlobalNCD90                   MessageType = "GLOBAL_NCD_90"
	MessageTypeGlobalNCDPage90               MessageType = "GLOBAL_NCD_PAGE_90"
	MessageTypeProjectNCD90                  MessageType = "PROJECT_NCD_90"
	MessageTypeProjectNCDPage90              MessageType = "PROJECT_NCD_PAGE_90"
	MessageTypeBranchNCD90                   MessageType = "BRANCH_NCD_90"
	MessageTypeUnresolvedFindingsInAIGenCode MessageType = "UNRESOLVED_FINDINGS_IN_AI_GENERATED_CODE"
)

type messageTypeTraits struct {
	dismissible   bool
	informational bool
}

var messageTypes = map[MessageType]messageTypeTraits{
	MessageTypeGeneric:                       {},
	MessageTypeInfo:                          {informational: true},
	MessageTypeSuggestDeveloperEdition:       {dismissible: true},
	MessageTypeGlobalNCD90:                   {dismissible: true},
	MessageTypeGlobalNCDPage90:               {dismissible: true},
	MessageTypeProjectNCD90:                  {dismissible: true},
	MessageTypeProjectNCDPage90:              {dismissible: true},
	MessageTypeBranchNCD90:                   {dismissible: true},
	MessageTypeUnresolvedFindingsInAIGenCode: {dismissible: true},
}

// ParseMessageType возвращает тип по имени
func ParseMessageType(name string) (MessageType, bool) {
	t := MessageType(name)
	_, ok := messageTypes[t]
	return t, ok
}

// IsDismissible возвращает true, если пользователь может скрыть сообщения этого типа
func (t MessageType) IsDismissible() bool {
	return messageTypes[t].dismissible
}

// IsWarning возвращает true для всех типов, кроме информационных
func (t MessageType) IsWarning() bool {
	traits, ok := messageTypes[t]
	return ok && !traits.informational
}

// WarningTypes возвращает типы, которые считаются предупреждениями
func WarningTypes() []MessageType {
	result := make([]MessageType, 0, len(messageTypes))
	for t, traits := range messageTypes {
		if !traits.informational {
			result = append(result, t)
		}
	}
	return result
}

// MaxMessageLength ограничивает длину текста сообщения
const MaxMessageLength = 4000

// TaskMessage сообщение, прикрепленное к задаче во время выполнения
type TaskMessage struct {
	UUID      string      `json:"id"`
	TaskUUID  string      `json:"task_id"`
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewTaskMessage создает сообщение; длинный текст обрезается
func NewTaskMessage(taskUUID string, messageType MessageType, text string, now time.Time) *TaskMessage {
	return &TaskMessage{
		UUID:      uuid.NewString(),
		TaskUUID:  taskUUID,
		Text:      truncate(text, MaxMessageLength),
		Type:      messageType,
		CreatedAt: now,
	}
}

// DismissedMessage отметка о скрытии типа сообщения пользователем для проекта
type DismissedMessage struct {
	UUID        string      `json:"id"`
	UserUUID    string      `json:"user_uuid"`
	ProjectUUID string      `json:"project_uuid"`
	Type        MessageType `json:"type"`
	CreatedAt   time.Time   `json:"created_at"`
}
