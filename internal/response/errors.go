package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidOption  ErrCode = "INVALID_OPTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrNotExamOwner        ErrCode = "NOT_EXAM_OWNER"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrExamNotFinished     ErrCode = "EXAM_NOT_FINISHED"
	ErrExamFinished        ErrCode = "EXAM_ALREADY_FINISHED"
	ErrFinalizeInProgress  ErrCode = "FINALIZE_IN_PROGRESS"
	ErrTimeUp              ErrCode = "TIME_UP"
	ErrSessionClosed       ErrCode = "SESSION_CLOSED"
	ErrSessionFault        ErrCode = "SESSION_FAULT"
	ErrQuestionSetNotFound ErrCode = "QUESTION_SET_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token de autenticação obrigatório."
	case ErrTokenInvalid:
		return "Token de autenticação inválido."
	case ErrTokenExpired:
		return "Sua sessão expirou. Faça login novamente."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Falha na validação. Verifique os dados enviados."
	case ErrInvalidID:
		return "Formato de ID inválido."
	case ErrInvalidPayload:
		return "Conteúdo da requisição inválido."
	case ErrInvalidOption:
		return "Alternativa inválida. Escolha entre A e E."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Recurso não encontrado."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Simulado não encontrado."
	case ErrNotExamOwner:
		return "Este simulado pertence a outro usuário."
	case ErrNoQuestions:
		return "Não há questões cadastradas para as matérias selecionadas."
	case ErrExamNotFinished:
		return "Este simulado ainda está em andamento."
	case ErrExamFinished:
		return "Este simulado já foi finalizado."
	case ErrFinalizeInProgress:
		return "A finalização deste simulado já está em andamento."
	case ErrTimeUp:
		return "O tempo do simulado acabou."
	case ErrSessionClosed:
		return "A sessão do simulado foi encerrada."
	case ErrSessionFault:
		return "A sessão do simulado encontrou um erro e foi interrompida. Recarregue a página."
	case ErrQuestionSetNotFound:
		return "As questões deste simulado não foram encontradas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Muitas requisições. Tente novamente mais tarde."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrStorageUnavailable:
		return "Não foi possível acessar o armazenamento. Tente novamente."
	case ErrInternal:
		return "Erro interno do servidor."
	default:
		return "Ocorreu um erro inesperado."
	}
}
