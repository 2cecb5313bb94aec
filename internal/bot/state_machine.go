package bot

// WorkerState - состояние стрим-воркера
type WorkerState string

const (
	StateCreated      WorkerState = "CREATED"
	StateResolving    WorkerState = "RESOLVING"
	StateStreaming    WorkerState = "STREAMING"
	StateReconnecting WorkerState = "RECONNECTING"
	StateEmpty        WorkerState = "EMPTY"
	StateError        WorkerState = "ERROR"
	StateTerminated   WorkerState = "TERMINATED"
)

// ValidTransitions определяет допустимые переходы между состояниями
var ValidTransitions = map[WorkerState][]WorkerState{
	StateCreated:      {StateResolving},
	StateResolving:    {StateStreaming, StateReconnecting, StateEmpty, StateError, StateTerminated}, // Terminated при остановке во время запроса позиций
	StateStreaming:    {StateReconnecting, StateTerminated},
	StateReconnecting: {StateStreaming, StateTerminated},
	StateEmpty:        {StateTerminated},
	StateError:        {StateTerminated},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to WorkerState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s WorkerState) string {
	switch s {
	case StateCreated:
		return "Воркер создан"
	case StateResolving:
		return "Получение аккаунта и позиций..."
	case StateStreaming:
		return "Поток mark price подключён"
	case StateReconnecting:
		return "Переподключение потока..."
	case StateEmpty:
		return "Открытых позиций нет"
	case StateError:
		return "Ошибка! Аккаунт или клиент недоступен"
	case StateTerminated:
		return "Воркер остановлен"
	default:
		return "Неизвестное состояние"
	}
}

// IsActive возвращает true пока воркер работает
func IsActive(s WorkerState) bool {
	return s == StateResolving || s == StateStreaming || s == StateReconnecting
}
