package llm

import (
	"encoding/json"
	"fmt"

	"tg-meds-bot/internal/domain"
)

const classifySystemPrompt = `Ты классификатор команд бота-напоминалки о приёме лекарств.
Пользователь пишет свободным текстом на русском языке. Определи тип команды:
- "add": добавить лекарство в расписание (указаны название и время приёма);
- "done": отметить лекарство принятым;
- "delete": удалить лекарство из расписания;
- "time_change": изменить время приёма существующего лекарства;
- "dose_change": изменить дозировку существующего лекарства;
- "timezone_change": изменить часовой пояс (указан город или смещение);
- "list": показать текущее расписание;
- "help": вопрос о возможностях бота;
- "unknown": всё остальное.
Ответ верни строго в формате JSON: {"command_type": "..."}.`

const addSystemPrompt = `Ты разбираешь команду добавления лекарств в расписание напоминаний.
Извлеки из сообщения пользователя список лекарств. Для каждого укажи название,
времена приёма в формате HH:MM (24 часа) и дозировку, если она названа.
Слова вроде "утром" переводи в 09:00, "днём" в 14:00, "вечером" в 20:00, "на ночь" в 22:00.
Ответ верни строго в формате JSON:
{"medications": [{"medication_name": "...", "dosage": "...", "times": ["HH:MM"]}]}.
Если лекарств в сообщении нет, верни {"medications": []}.`

const selectionFormat = `Ответ верни строго в формате JSON:
{"status": "...", "medication_name": "...", "medication_ids": [...], "message": "..."}.
Поле "status": "success" если записи найдены однозначно, "not_found" если такого
лекарства в расписании нет, "clarification_needed" если запрос неоднозначен.
В "medication_ids" перечисли поле "id" подходящих записей из расписания,
не придумывай новых идентификаторов. В "message" при статусе отличном от
"success" напиши короткое пояснение для пользователя на русском.`

const doneSystemPrompt = `Ты разбираешь команду отметки приёма лекарства.
Пользователь сообщает, что принял лекарство. Найди в его расписании записи,
о которых идёт речь. Если время приёма не уточнено, подходят все записи с этим
названием. ` + selectionFormat

const deleteSystemPrompt = `Ты разбираешь команду удаления лекарства из расписания.
Найди в расписании пользователя записи, которые он просит удалить. Если время
не уточнено, удаляются все записи с этим названием. ` + selectionFormat

const timeChangeSystemPrompt = `Ты разбираешь команду смены времени приёма лекарства.
Найди в расписании записи, о которых идёт речь, и извлеки новые времена приёма
в формате HH:MM (24 часа). Дополнительно к обычным полям заполни
"new_times": ["HH:MM"]. ` + selectionFormat

const doseChangeSystemPrompt = `Ты разбираешь команду смены дозировки лекарства.
Найди в расписании записи, о которых идёт речь, и извлеки новую дозировку.
Дополнительно к обычным полям заполни "new_dosage": "...". ` + selectionFormat

const timezoneSystemPrompt = `Ты разбираешь команду смены часового пояса.
Пользователь называет город или смещение от UTC. Определи смещение в формате
"+HH:MM" или "-HH:MM" (например Москва это "+03:00", Нью-Йорк "-05:00").
Ответ верни строго в формате JSON:
{"status": "...", "timezone_offset": "...", "city_name": "...", "message": "..."}.
Поле "status": "success" если пояс определён, иначе "clarification_needed"
с коротким пояснением в "message".`

// schedulePayload — представление записи расписания в промпте.
type schedulePayload struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
	Time   string `json:"time"`
}

func scheduleContext(schedule []domain.Medication) string {
	payload := make([]schedulePayload, 0, len(schedule))
	for _, m := range schedule {
		payload = append(payload, schedulePayload{ID: m.ID, Name: m.Name, Dosage: m.Dosage, Time: m.Time})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "[]"
	}
	return string(body)
}

func selectionUserPrompt(text string, schedule []domain.Medication) string {
	return fmt.Sprintf("Расписание пользователя в JSON:\n%s\n\nСообщение пользователя:\n%s",
		scheduleContext(schedule), text)
}
