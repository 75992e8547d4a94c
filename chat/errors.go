package chat

// Error is a user-facing chat failure. Code distinguishes the cause for
// clients; Message is shown in place of an assistant reply.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// CodeLLM marks a provider failure passed through from the gateway.
const CodeLLM = "LLM"

// Turn errors.
var (
	ErrEmptyReply    = &Error{Code: "E01", Message: "E01. Reply failed validation or is empty. Please try again."}
	ErrEmptyChatID   = &Error{Code: "E02", Message: "E02. Chat ID is empty. Please reload and try again."}
	ErrLoginRequired = &Error{Code: "E03", Message: "E03. Log in required. Please reload, sign in, and try again."}
	ErrChatNotFound  = &Error{Code: "E04", Message: "E04. Chat not found for your user account. Please start a new chat."}
	ErrEmptyResponse = &Error{Code: "E05", Message: "E05. Response is empty after processing. Please reload and try again."}
	ErrSaveFailed    = &Error{Code: "E06", Message: "E06. Failed to save this conversation turn. Please reload and try again."}
)

// Delete errors. Codes overlap with the turn errors but the causes differ.
var (
	ErrDeleteInvalidID     = &Error{Code: "E01", Message: "E01. chatID failed validation or is empty. Please reload and try deleting again."}
	ErrDeleteLoginRequired = &Error{Code: "E03", Message: "E03. Log in required. Please reload, sign in, and try deleting again."}
	ErrDeleteNotFound      = &Error{Code: "E04", Message: "E04. chatID not found for your user account. Cannot delete. Please try again."}
	ErrAlreadyDeleted      = &Error{Code: "E05", Message: "E05. chatID already deleted."}
	ErrDeleteFailed        = &Error{Code: "E06", Message: "E06. Failed to delete this conversation. Please reload and try again."}
)

func gatewayError(msg string) *Error {
	return &Error{Code: CodeLLM, Message: msg}
}
