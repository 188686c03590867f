// Package i18n holds the user-visible strings in every supported language.
package i18n

import (
	"golang.org/x/text/language"
)

// Key identifies a localized string.
type Key string

const (
	Connecting       Key = "connecting"
	Buffering        Key = "buffering"
	TapToPlay        Key = "tapToPlay"
	Playing          Key = "playing"
	Paused           Key = "paused"
	Complete         Key = "complete"
	Stopped          Key = "stopped"
	StreamEndedEarly Key = "streamEndedEarly"
	Idle             Key = "idle"

	ErrInvalidResponse  Key = "errInvalidResponse"
	ErrTransportFailure Key = "errTransportFailure"
	ErrPartialStream    Key = "errPartialStream"
	ErrBufferAppend     Key = "errBufferAppend"
	ErrReadyTimeout     Key = "errReadyTimeout"
	ErrGeneric          Key = "errGeneric"

	GoodQuestion  Key = "goodQuestion"
	Thinking      Key = "thinking"
	TypeQuestion  Key = "typeQuestion"
	RateLimited   Key = "rateLimitMessage"
	VoiceResponse Key = "voiceResponse"
	AutoplayOn    Key = "autoplayOn"
	AutoplayOff   Key = "autoplayOff"
	VoiceOn       Key = "voiceOn"
	VoiceOff      Key = "voiceOff"
	Title         Key = "title"
	Subtitle      Key = "subtitle"
	Help          Key = "help"
	LanguageName  Key = "languageName"
	FallingBack   Key = "fallingBack"
)

// Supported lists the available languages, the first one being the default.
var Supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(Supported)

var catalogs = map[language.Tag]map[Key]string{
	language.English: {
		Idle:             "Ready",
		Connecting:       "Connecting...",
		Buffering:        "Buffering...",
		TapToPlay:        "Tap to play",
		Playing:          "Playing",
		Paused:           "Paused",
		Complete:         "Complete",
		Stopped:          "Stopped",
		StreamEndedEarly: "Stream ended early",

		ErrInvalidResponse:  "The server did not send audio",
		ErrTransportFailure: "Connection lost before any audio arrived",
		ErrPartialStream:    "Stream ended early",
		ErrBufferAppend:     "The audio could not be decoded",
		ErrReadyTimeout:     "Audio took too long to start",
		ErrGeneric:          "Sorry, something went wrong. Please try again.",

		GoodQuestion:  "Good question...",
		Thinking:      "Let me think about that for a moment...",
		TypeQuestion:  "Type your question...",
		RateLimited:   "You're sending messages too quickly. Please wait a moment before trying again.",
		VoiceResponse: "Voice Response",
		AutoplayOn:    "Auto-Play ON",
		AutoplayOff:   "Auto-Play OFF",
		VoiceOn:       "Voice ON",
		VoiceOff:      "Voice OFF",
		Title:         "William AI",
		Subtitle:      "Virtual Interviewer",
		Help:          "[Enter]Send  [Space]Play/Pause  [↑↓]Select  [^A]Auto-Play  [^V]Voice  [^L]Language  [Esc]Quit",
		LanguageName:  "English",
		FallingBack:   "Retrying without streaming...",
	},
	language.French: {
		Idle:             "Prêt",
		Connecting:       "Connexion...",
		Buffering:        "Mise en mémoire tampon...",
		TapToPlay:        "Touchez pour écouter",
		Playing:          "Lecture",
		Paused:           "En pause",
		Complete:         "Terminé",
		Stopped:          "Arrêté",
		StreamEndedEarly: "Le flux s'est interrompu",

		ErrInvalidResponse:  "Le serveur n'a pas envoyé d'audio",
		ErrTransportFailure: "Connexion perdue avant la réception de l'audio",
		ErrPartialStream:    "Le flux s'est interrompu",
		ErrBufferAppend:     "L'audio n'a pas pu être décodé",
		ErrReadyTimeout:     "L'audio a mis trop de temps à démarrer",
		ErrGeneric:          "Désolé, une erreur s'est produite. Veuillez réessayer.",

		GoodQuestion:  "Bonne question...",
		Thinking:      "Laissez-moi réfléchir à cela un instant...",
		TypeQuestion:  "Tapez votre question...",
		RateLimited:   "Vous envoyez des messages trop rapidement. Veuillez attendre un moment avant de réessayer.",
		VoiceResponse: "Réponse vocale",
		AutoplayOn:    "Lecture automatique ON",
		AutoplayOff:   "Lecture automatique OFF",
		VoiceOn:       "Voix ON",
		VoiceOff:      "Voix OFF",
		Title:         "William IA",
		Subtitle:      "Intervieweur virtuel",
		Help:          "[Entrée]Envoyer  [Espace]Lecture/Pause  [↑↓]Choisir  [^A]Lecture auto  [^V]Voix  [^L]Langue  [Échap]Quitter",
		LanguageName:  "Français",
		FallingBack:   "Nouvel essai sans streaming...",
	},
}

// Match returns the supported language closest to the given tag string.
// Unparsable or unknown input yields English.
func Match(tag string) language.Tag {
	t, err := language.Parse(tag)
	if err != nil {
		return Supported[0]
	}
	_, idx, _ := matcher.Match(t)
	return Supported[idx]
}

// T returns the string for key in lang, falling back to English and then to
// the key itself.
func T(lang language.Tag, key Key) string {
	if s, ok := catalogs[lang][key]; ok {
		return s
	}
	if s, ok := catalogs[language.English][key]; ok {
		return s
	}
	return string(key)
}

// Next returns the supported language after lang, wrapping around.
func Next(lang language.Tag) language.Tag {
	for i, t := range Supported {
		if t == lang {
			return Supported[(i+1)%len(Supported)]
		}
	}
	return Supported[0]
}
