package services

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInquiryNotFound      = errors.New("inquiry not found")
	ErrPropertyNotFound     = errors.New("property not found")
	ErrPropertyOwnerUnknown = errors.New("property has no owning agent")
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
	ErrNotInquiryAgent      = errors.New("inquiry belongs to another agent")
	ErrInvalidStatus        = errors.New("invalid inquiry status")
	ErrEmptyMessage         = errors.New("message text is required")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrSettingNotFound      = errors.New("setting not found")
)
