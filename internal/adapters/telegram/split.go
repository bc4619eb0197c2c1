package telegram

import "strings"

// Telegram не принимает сообщения длиннее 4096 символов.
const messageLimit = 4096

// SplitMessage режет длинный ответ на части, допустимые для отправки.
// Режем по строкам, чтобы пункты расписания не разрывались посередине.
func SplitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= messageLimit {
		return []string{text}
	}

	var parts []string
	var cur []rune
	flush := func() {
		chunk := strings.Trim(string(cur), "\n")
		if chunk != "" {
			parts = append(parts, chunk)
		}
		cur = cur[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		lr := []rune(line)
		// Строка длиннее лимита режется жёстко, посимвольно.
		for len(lr) > messageLimit {
			flush()
			parts = append(parts, string(lr[:messageLimit]))
			lr = lr[messageLimit:]
		}
		if len(cur) > 0 && len(cur)+1+len(lr) > messageLimit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, lr...)
	}
	flush()

	if len(parts) == 0 {
		return []string{text}
	}
	return parts
}
