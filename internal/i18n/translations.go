package i18n

// Key identifies one user-facing notice.
type Key int

const (
	KeyUnsafeChat Key = iota
	KeyChatViolation
	KeyOnlyFinance
	KeyServerError
	KeyGenerationError
	KeyEmptyCountry
	KeyEmptyMessage
	KeyUnsupportedLanguage
	KeySessionNotFound
	KeyNoOffers
	KeyCouldNotSummarize

	keyCount
)

// Translate returns the notice text for the given key and language. Every
// key is covered for every supported language; an out-of-range language
// falls back to the default.
func Translate(key Key, lang Language) string {
	if key < 0 || key >= keyCount {
		return ""
	}
	if lang < 0 || lang >= languageCount {
		lang = Default
	}
	return table[key][lang]
}

var table = [keyCount][languageCount]string{
	KeyUnsafeChat: {
		English:       "Your message does not meet the conversation security policy.",
		Spanish:       "Su mensaje no cumple con la política de seguridad de la conversación.",
		SpanishMexico: "Su mensaje no cumple con la política de seguridad de la conversación.",
		SpanishSpain:  "Tu mensaje no cumple con la política de seguridad de la conversación.",
		Polish:        "Twoja wiadomość nie spełnia polityki bezpieczeństwa rozmowy.",
		Romanian:      "Mesajul dumneavoastră nu îndeplinește politica de securitate a conversației.",
		Swedish:       "Ditt meddelande uppfyller inte konversationssäkerhetspolicyn.",
	},
	KeyChatViolation: {
		English:       "The chat has been terminated by the system due to previous violations of the safety policy. Please start a new chat.",
		Spanish:       "El chat ha sido terminado por el sistema debido a violaciones previas de la política de seguridad. Por favor, inicie un nuevo chat.",
		SpanishMexico: "El chat ha sido terminado por el sistema debido a violaciones previas de la política de seguridad. Por favor, inicie un nuevo chat.",
		SpanishSpain:  "El chat ha sido terminado por el sistema debido a violaciones previas de la política de seguridad. Por favor, inicia un nuevo chat.",
		Polish:        "Czat został zakończony przez system z powodu poprzednich naruszeń polityki bezpieczeństwa. Proszę rozpocząć nowy czat.",
		Romanian:      "Conversația a fost încheiată de sistem din cauza încălcărilor anterioare ale politicii de siguranță. Vă rugăm să începeți o conversație nouă.",
		Swedish:       "Chatten har avslutats av systemet på grund av tidigare överträdelser av säkerhetspolicyn. Vänligen starta en ny chatt.",
	},
	KeyOnlyFinance: {
		English:       "Please limit your questions to financial topics.",
		Spanish:       "Por favor, limite sus preguntas a temas financieros.",
		SpanishMexico: "Por favor, limite sus preguntas a temas financieros.",
		SpanishSpain:  "Por favor, limita tus preguntas a temas financieros.",
		Polish:        "Proszę ograniczyć swoje pytania do tematów finansowych.",
		Romanian:      "Vă rugăm să vă limitați întrebările la subiecte financiare.",
		Swedish:       "Vänligen begränsa dina frågor till finansiella ämnen.",
	},
	KeyServerError: {
		English:       "Server error. Please try again later.",
		Spanish:       "Error del servidor. Por favor, inténtelo de nuevo más tarde.",
		SpanishMexico: "Error del servidor. Por favor, inténtelo de nuevo más tarde.",
		SpanishSpain:  "Error del servidor. Por favor, inténtalo de nuevo más tarde.",
		Polish:        "Błąd serwera. Proszę spróbować ponownie później.",
		Romanian:      "Eroare de server. Vă rugăm să încercați din nou mai târziu.",
		Swedish:       "Serverfel. Vänligen försök igen senare.",
	},
	KeyGenerationError: {
		English:       "Failed to generate a response. Please try again.",
		Spanish:       "No se pudo generar una respuesta. Por favor, inténtelo de nuevo.",
		SpanishMexico: "No se pudo generar una respuesta. Por favor, inténtelo de nuevo.",
		SpanishSpain:  "No se pudo generar una respuesta. Por favor, inténtalo de nuevo.",
		Polish:        "Nie można wygenerować odpowiedzi. Proszę spróbować ponownie.",
		Romanian:      "Nu s-a putut genera un răspuns. Vă rugăm să încercați din nou.",
		Swedish:       "Det gick inte att generera ett svar. Vänligen försök igen.",
	},
	KeyEmptyCountry: {
		English:       "Country code is required.",
		Spanish:       "El código de país es obligatorio.",
		SpanishMexico: "El código de país es obligatorio.",
		SpanishSpain:  "El código de país es obligatorio.",
		Polish:        "Kod kraju jest obowiązkowy.",
		Romanian:      "Codul țării este obligatoriu.",
		Swedish:       "Landskoden är obligatorisk.",
	},
	KeyEmptyMessage: {
		English:       "Message cannot be empty.",
		Spanish:       "El mensaje no puede estar vacío.",
		SpanishMexico: "El mensaje no puede estar vacío.",
		SpanishSpain:  "El mensaje no puede estar vacío.",
		Polish:        "Wiadomość nie może być pusta.",
		Romanian:      "Mesajul nu poate fi gol.",
		Swedish:       "Meddelandet kan inte vara tomt.",
	},
	KeyUnsupportedLanguage: {
		English:       "Your message should be in Spanish, English, Polish, Romanian or Swedish.",
		Spanish:       "Su mensaje debe estar en español, inglés, polaco, rumano o sueco.",
		SpanishMexico: "Su mensaje debe estar en español, inglés, polaco, rumano o sueco.",
		SpanishSpain:  "Tu mensaje debe estar en español, inglés, polaco, rumano o sueco.",
		Polish:        "Twoja wiadomość powinna być po hiszpańsku, angielsku, polsku, rumuńsku lub szwedzku.",
		Romanian:      "Mesajul dumneavoastră trebuie să fie în spaniolă, engleză, poloneză, română sau suedeză.",
		Swedish:       "Ditt meddelande ska vara på spanska, engelska, polska, rumänska eller svenska.",
	},
	KeySessionNotFound: {
		English:       "Chat session not found.",
		Spanish:       "No se encontró la sesión de chat.",
		SpanishMexico: "No se encontró la sesión de chat.",
		SpanishSpain:  "No se ha encontrado la sesión de chat.",
		Polish:        "Nie znaleziono sesji czatu.",
		Romanian:      "Sesiunea de chat nu a fost găsită.",
		Swedish:       "Chattsessionen hittades inte.",
	},
	KeyNoOffers: {
		English:       "No matching offers were found. Try adjusting your request.",
		Spanish:       "No se encontraron ofertas que coincidan. Intente ajustar su solicitud.",
		SpanishMexico: "No se encontraron ofertas que coincidan. Intente ajustar su solicitud.",
		SpanishSpain:  "No se han encontrado ofertas que coincidan. Intenta ajustar tu solicitud.",
		Polish:        "Nie znaleziono pasujących ofert. Spróbuj zmienić swoje zapytanie.",
		Romanian:      "Nu au fost găsite oferte potrivite. Încercați să vă ajustați cererea.",
		Swedish:       "Inga matchande erbjudanden hittades. Försök att justera din förfrågan.",
	},
	KeyCouldNotSummarize: {
		English:       "Failed to summarize the chat, please try again.",
		Spanish:       "No se pudo resumir el chat, por favor inténtelo de nuevo.",
		SpanishMexico: "No se pudo resumir el chat, por favor inténtelo de nuevo.",
		SpanishSpain:  "No se ha podido resumir el chat, por favor inténtalo de nuevo.",
		Polish:        "Nie udało się podsumować czatu, spróbuj ponownie.",
		Romanian:      "Nu s-a putut rezuma conversația, vă rugăm să încercați din nou.",
		Swedish:       "Det gick inte att sammanfatta chatten, försök igen.",
	},
}
