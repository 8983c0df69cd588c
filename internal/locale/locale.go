package locale

// Bundle is a flat string-lookup table for display text. Missing keys fall
// back to English, then to the key itself, matching the original app.
type Bundle struct {
	Key     string
	strings map[string]string
}

var bundles = map[string]map[string]string{
	"en": en,
	"ru": ru,
}

func Default() Bundle {
	return Bundle{Key: "en", strings: en}
}

func ForKey(key string) Bundle {
	if strings, ok := bundles[key]; ok {
		return Bundle{Key: key, strings: strings}
	}
	return Default()
}

func (b Bundle) T(key string) string {
	if value, ok := b.strings[key]; ok {
		return value
	}
	if value, ok := en[key]; ok {
		return value
	}
	return key
}

// Next returns the bundle the locale toggle switches to.
func (b Bundle) Next() Bundle {
	if b.Key == "en" {
		return ForKey("ru")
	}
	return ForKey("en")
}

var en = map[string]string{
	"app.title":                   "Student Helper",
	"auth.loginTitle":             "Log In",
	"auth.signupTitle":            "Sign Up",
	"auth.password":               "Password",
	"auth.university":             "University",
	"auth.selectPlaceholder":      "Select your university",
	"auth.loginButton":            "Log In",
	"auth.signupButton":           "Sign Up",
	"auth.noAccount":              "Don't have an account?",
	"auth.hasAccount":             "Already have an account?",
	"auth.signupLink":             "Sign up",
	"auth.loginLink":              "Log in",
	"auth.signupSuccess":          "Check your email to confirm your account.",
	"auth.error.selectUniversity": "Please select a university to sign up.",
	"auth.email":                  "Email",
	"sidebar.newChat":             "New Chat",
	"sidebar.newChatTitle":        "New chat",
	"sidebar.logout":              "Log Out",
	"sidebar.deleteConfirm":       "Delete this chat? This cannot be undone.",
	"sidebar.delete":              "Delete",
	"chat.initialGreeting":        "Hello, student of",
	"chat.initialPrompt":          "How can I help you today?",
	"chat.inputPlaceholder":       "Type your message...",
	"chat.sendButton":             "Send",
	"chat.aiResponse":             "Thanks for your message! I'm a demo assistant, so this is a canned reply - a real answer would appear here.",
	"chat.typing":                 "Typing...",
	"profile.title":               "Profile",
	"profile.tabProfile":          "Profile",
	"profile.tabSchedule":         "Schedule",
	"profile.tabPrefs":            "Preferences",
	"profile.firstName":           "First name",
	"profile.lastName":            "Last name",
	"profile.bio":                 "About me",
	"profile.save":                "Save",
	"profile.close":               "Close",
	"profile.hobbies":             "Hobbies",
	"profile.addHobby":            "Add hobby",
	"profile.style":               "Assistant style",
	"profile.notifyEmail":         "Email notifications",
	"profile.notifyPush":          "Push notifications",
	"schedule.addTitle":           "Add event",
	"schedule.title":              "Title",
	"schedule.start":              "Starts",
	"schedule.end":                "Ends",
	"schedule.location":           "Location",
	"schedule.empty":              "No events yet.",
	"schedule.remove":             "Remove",
	"config.errorTitle":           "Configuration Error",
	"config.errorMessage":         "Backend credentials are not configured. Set SUPABASE_URL and SUPABASE_ANON_KEY before starting the app.",
}

var ru = map[string]string{
	"app.title":                   "Помощник студента",
	"auth.loginTitle":             "Вход",
	"auth.signupTitle":            "Регистрация",
	"auth.password":               "Пароль",
	"auth.university":             "Университет",
	"auth.selectPlaceholder":      "Выберите университет",
	"auth.loginButton":            "Войти",
	"auth.signupButton":           "Зарегистрироваться",
	"auth.noAccount":              "Нет аккаунта?",
	"auth.hasAccount":             "Уже есть аккаунт?",
	"auth.signupLink":             "Регистрация",
	"auth.loginLink":              "Войти",
	"auth.signupSuccess":          "Проверьте почту для подтверждения аккаунта.",
	"auth.error.selectUniversity": "Выберите университет для регистрации.",
	"auth.email":                  "Эл. почта",
	"sidebar.newChat":             "Новый чат",
	"sidebar.newChatTitle":        "Новый чат",
	"sidebar.logout":              "Выйти",
	"sidebar.deleteConfirm":       "Удалить этот чат? Это действие необратимо.",
	"sidebar.delete":              "Удалить",
	"chat.initialGreeting":        "Привет, студент",
	"chat.initialPrompt":          "Чем я могу помочь?",
	"chat.inputPlaceholder":       "Введите сообщение...",
	"chat.sendButton":             "Отправить",
	"chat.aiResponse":             "Спасибо за сообщение! Я демонстрационный ассистент, поэтому это заготовленный ответ.",
	"chat.typing":                 "Печатает...",
	"profile.title":               "Профиль",
	"profile.tabProfile":          "Профиль",
	"profile.tabSchedule":         "Расписание",
	"profile.tabPrefs":            "Настройки",
	"profile.firstName":           "Имя",
	"profile.lastName":            "Фамилия",
	"profile.bio":                 "О себе",
	"profile.save":                "Сохранить",
	"profile.close":               "Закрыть",
	"profile.hobbies":             "Увлечения",
	"profile.addHobby":            "Добавить увлечение",
	"profile.style":               "Стиль ассистента",
	"profile.notifyEmail":         "Уведомления по почте",
	"profile.notifyPush":          "Push-уведомления",
	"schedule.addTitle":           "Добавить событие",
	"schedule.title":              "Название",
	"schedule.start":              "Начало",
	"schedule.end":                "Конец",
	"schedule.location":           "Место",
	"schedule.empty":              "Пока нет событий.",
	"schedule.remove":             "Удалить",
	"config.errorTitle":           "Ошибка конфигурации",
	"config.errorMessage":         "Учётные данные бэкенда не настроены. Задайте SUPABASE_URL и SUPABASE_ANON_KEY перед запуском.",
}
