package lexicon

import "clinicvoice/internal/domain"

func Default() *Lexicon {
	return &Lexicon{
		Greetings: map[domain.Language][]string{
			domain.LangEN: {"hello", "hi", "hey", "good morning", "good afternoon", "english"},
			domain.LangRU: {"привет", "здравствуйте", "добрый день", "алло", "русский"},
		},
		Goodbye: map[domain.Language][]string{
			domain.LangEN: {"bye", "goodbye", "good bye", "see you", "that's all"},
			domain.LangRU: {"пока", "до свидания", "всего доброго", "это всё"},
		},
		Operator: map[domain.Language][]string{
			domain.LangEN: {"operator", "human", "real person", "support", "receptionist", "administrator"},
			domain.LangRU: {"оператор", "человек", "администратор", "поддержка"},
		},
		NameIntro: map[domain.Language][]string{
			domain.LangEN: {"my name is"},
			domain.LangRU: {"меня зовут"},
		},
		Distress: map[domain.Language][]string{
			domain.LangEN: {"scared", "afraid", "fear", "fears", "frightened", "nervous", "anxious", "worried",
				"hurt", "hurts", "painful", "terrified"},
			domain.LangRU: {"боюсь", "боится", "страшно", "больно", "страх", "страха", "страхом",
				"нервничаю", "переживаю", "волнуюсь"},
		},
		Empathy: map[domain.Language]string{
			domain.LangEN: "Don't worry, our doctors are very gentle and everything is done with anesthesia.",
			domain.LangRU: "Не переживайте, наши врачи работают очень бережно и всё делают под анестезией.",
		},
		DirectAnswers: []DirectAnswer{
			{
				Name: "price",
				Keywords: map[domain.Language][]string{
					domain.LangEN: {"price", "cost", "how much"},
					domain.LangRU: {"цена", "стоимость", "сколько стоит"},
				},
				Answers: map[domain.Language]string{
					domain.LangEN: "The price for dental cleaning is 100 dollars.",
					domain.LangRU: "Стоимость профессиональной чистки зубов 100 долларов.",
				},
			},
			{
				Name: "hours",
				Keywords: map[domain.Language][]string{
					domain.LangEN: {"hours", "open", "schedule", "working time"},
					domain.LangRU: {"часы работы", "график", "во сколько открываетесь"},
				},
				Answers: map[domain.Language]string{
					domain.LangEN: "We are open Monday to Saturday from 9 am to 8 pm.",
					domain.LangRU: "Мы работаем с понедельника по субботу с 9 до 20 часов.",
				},
			},
			{
				Name: "address",
				Keywords: map[domain.Language][]string{
					domain.LangEN: {"address", "location", "where are you"},
					domain.LangRU: {"адрес", "где вы находитесь", "как добраться"},
				},
				Answers: map[domain.Language]string{
					domain.LangEN: "Our clinic is at 12 Main Street, second floor.",
					domain.LangRU: "Наша клиника находится по адресу Главная улица, 12, второй этаж.",
				},
			},
		},
		Prompts: map[domain.Language]Prompts{
			domain.LangEN: {
				LanguageChoice: "Hello! Say hello to continue in English. Скажите привет, чтобы продолжить на русском.",
				Welcome:        "Welcome to the dental clinic. How can I help you?",
				WelcomeBack:    "Welcome back, %s. How can I help you today?",
				Reprompt:       "Sorry, I didn't catch that. Could you please repeat?",
				Escalation:     "Let me connect you to our administrator.",
				Goodbye:        "Thank you for calling. Goodbye!",
				Fallback:       "Sorry, could you rephrase your question?",
				NiceToMeet:     "Nice to meet you, %s. How can I help you?",
			},
			domain.LangRU: {
				LanguageChoice: "Здравствуйте! Скажите привет, чтобы продолжить на русском. Say hello to continue in English.",
				Welcome:        "Добро пожаловать в стоматологическую клинику. Чем могу помочь?",
				WelcomeBack:    "С возвращением, %s. Чем могу помочь?",
				Reprompt:       "Извините, я не расслышал. Повторите, пожалуйста.",
				Escalation:     "Соединяю вас с администратором.",
				Goodbye:        "Спасибо за звонок. До свидания!",
				Fallback:       "Извините, не могли бы вы переформулировать вопрос?",
				NiceToMeet:     "Приятно познакомиться, %s. Чем могу помочь?",
			},
		},
		Denylist: []string{
			"stop", "subtitles", "thanks for watching", "thank you for watching", "music",
			"продолжение следует", "субтитры", "редактор субтитров",
		},
		Allowlist: []string{
			"tooth", "teeth", "dentist", "doctor", "appointment", "book", "price", "cost", "cleaning",
			"pain", "hurt", "filling", "implant", "braces", "whitening", "hours", "open", "address",
			"operator", "hello", "bye", "name", "scared", "afraid",
			"зуб", "зубы", "врач", "стоматолог", "запись", "записаться", "цена", "стоимость", "чистка",
			"боль", "больно", "пломба", "имплант", "брекеты", "отбеливание", "адрес", "оператор",
			"привет", "пока", "зовут", "боюсь",
		},
		PhraseHints: []string{
			"dental cleaning", "appointment", "toothache", "filling", "implant", "whitening", "braces",
			"чистка зубов", "запись на приём", "зубная боль", "пломба", "имплант",
		},
	}
}
