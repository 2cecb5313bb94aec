package bot

// tryEnqueueEvent отправляет событие в канал подписчика с метриками переполнения.
// Возвращает true, если событие поставлено в очередь.
func tryEnqueueEvent(ch chan Event, ev Event, buffer string) bool {
	if ch == nil {
		return false
	}

	select {
	case ch <- ev:
		return true
	default:
		RecordBufferOverflow(buffer)
		RecordBufferBacklog(buffer, cap(ch), len(ch))
		return false
	}
}
