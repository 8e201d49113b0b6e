// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package locale renders the user-facing messages of the player in the
// learner's language. Brazilian Portuguese is the default; English is the
// fallback for every other tag.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

// Message keys.
const (
	KeyNetworkError       = "error.network"
	KeyAuthExpired        = "error.authorization_expired"
	KeyPlaybackRestricted = "error.playback_restricted"
	KeyMediaNotFound      = "error.media_not_found"
	KeyIntegrity          = "error.client_integrity_violation"
	KeyDevToolsNotice     = "notice.devtools_open"
	KeyAccessDenied       = "notice.access_denied"
)

var supported = []language.Tag{language.BrazilianPortuguese, language.English}

var matcher = language.NewMatcher(supported)

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyNetworkError:       "Could not load the video. Check your connection and try again.",
		KeyAuthExpired:        "Your viewing session expired. Reload the lesson to keep watching.",
		KeyPlaybackRestricted: "Video playback is restricted for this account.",
		KeyMediaNotFound:      "This lesson video could not be found.",
		KeyIntegrity:          "Playback was interrupted to protect the content.",
		KeyDevToolsNotice:     "Developer tools were detected. Close them to continue watching.",
		KeyAccessDenied:       "You do not have permission to watch this video.",
	},
	language.BrazilianPortuguese: {
		KeyNetworkError:       "Não foi possível carregar o vídeo. Verifique sua conexão e tente novamente.",
		KeyAuthExpired:        "Sua sessão de visualização expirou. Recarregue a aula para continuar assistindo.",
		KeyPlaybackRestricted: "A reprodução do vídeo está restrita para esta conta.",
		KeyMediaNotFound:      "O vídeo desta aula não foi encontrado.",
		KeyIntegrity:          "A reprodução foi interrompida para proteger o conteúdo.",
		KeyDevToolsNotice:     "Ferramentas de desenvolvedor detectadas. Feche-as para continuar assistindo.",
		KeyAccessDenied:       "Você não tem permissão para acessar este vídeo.",
	},
}

var cat = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic("locale: " + err.Error())
			}
		}
	}
	return b
}

// Translator prints messages for one language.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New picks the best supported language for the BCP 47 tag. Unparseable or
// empty tags select Brazilian Portuguese.
func New(tag string) *Translator {
	chosen := supported[0]
	if tag != "" {
		if t, err := language.Parse(tag); err == nil {
			_, idx, conf := matcher.Match(t)
			if conf != language.No {
				chosen = supported[idx]
			} else {
				chosen = language.English
			}
		}
	}
	return &Translator{tag: chosen, printer: message.NewPrinter(chosen, message.Catalog(cat))}
}

// Tag returns the selected language.
func (t *Translator) Tag() language.Tag { return t.tag }

// Text returns the message for key.
func (t *Translator) Text(key string) string {
	return t.printer.Sprintf(key)
}

var errorKeys = map[model.ErrorKind]string{
	model.KindNetwork:              KeyNetworkError,
	model.KindAuthorizationExpired: KeyAuthExpired,
	model.KindPlaybackRestricted:   KeyPlaybackRestricted,
	model.KindMediaNotFound:        KeyMediaNotFound,
	model.KindIntegrityViolation:   KeyIntegrity,
}

// ErrorMessage returns the surfaced message for an error kind.
func (t *Translator) ErrorMessage(kind model.ErrorKind) string {
	key, ok := errorKeys[kind]
	if !ok {
		key = KeyNetworkError
	}
	return t.Text(key)
}
