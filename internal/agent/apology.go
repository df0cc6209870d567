package agent

import "strings"

// apologies is keyed by the primary language subtag. The text is constant so
// an aborted run never depends on another model call.
var apologies = map[string]string{
	"en": "I'm sorry, I wasn't able to complete that request right now. Please try again in a moment.",
	"pl": "Przepraszam, nie udało mi się teraz zrealizować tej prośby. Proszę spróbować ponownie za chwilę.",
	"de": "Es tut mir leid, ich konnte diese Anfrage gerade nicht abschließen. Bitte versuchen Sie es gleich noch einmal.",
	"es": "Lo siento, no he podido completar esa solicitud en este momento. Por favor, inténtelo de nuevo en un momento.",
	"fr": "Je suis désolé, je n'ai pas pu traiter cette demande pour le moment. Veuillez réessayer dans un instant.",
}

// Apology returns the abort reply for a BCP-47 tag, falling back to English
// for unknown languages.
func Apology(tag string) string {
	primary, _, _ := strings.Cut(strings.ToLower(tag), "-")
	if text, ok := apologies[primary]; ok {
		return text
	}
	return apologies["en"]
}
