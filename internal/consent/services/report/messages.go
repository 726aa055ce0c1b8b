package report

import (
	"fmt"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys are the English texts.
const (
	msgTitle         = "Cookie compliance report"
	msgScannedAt     = "Scanned at: %s"
	msgFound         = "Cookies found: %d"
	msgDeclared      = "Declared cookies: %d"
	msgCompliant     = "Compliant: every cookie belongs to a declared service."
	msgIssues        = "%d issues found."
	msgKnownHeader   = "Known services not declared (%d):"
	msgUnknownHeader = "Unknown cookies (%d):"
	msgKnownLine     = "%s: service %s (%s), pattern %s"
	msgKnownAdvice   = "Add %s to your declared services."
	msgUnknownAdvice = "Find the script that sets this cookie, then declare its service or remove it."
)

var supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
}

var (
	matcher  = language.NewMatcher(supported)
	messages = buildCatalog()
)

type translation struct {
	title, scannedAt, found, declared, compliant      string
	issuesOne, issuesOther                             string
	knownHeader, unknownHeader, knownLine, knownAdvice string
	unknownAdvice                                      string
}

var translations = map[language.Tag]translation{
	language.German: {
		title:         "Cookie-Compliance-Bericht",
		scannedAt:     "Gescannt am: %s",
		found:         "Gefundene Cookies: %d",
		declared:      "Deklarierte Cookies: %d",
		compliant:     "Konform: Alle Cookies gehören zu deklarierten Diensten.",
		issuesOne:     "%[1]d Problem gefunden.",
		issuesOther:   "%[1]d Probleme gefunden.",
		knownHeader:   "Bekannte, nicht deklarierte Dienste (%d):",
		unknownHeader: "Unbekannte Cookies (%d):",
		knownLine:     "%s: Dienst %s (%s), Muster %s",
		knownAdvice:   "Fügen Sie %s zu Ihren deklarierten Diensten hinzu.",
		unknownAdvice: "Finden Sie das Skript, das dieses Cookie setzt, und deklarieren Sie den Dienst oder entfernen Sie das Skript.",
	},
	language.French: {
		title:         "Rapport de conformité des cookies",
		scannedAt:     "Analysé le : %s",
		found:         "Cookies trouvés : %d",
		declared:      "Cookies déclarés : %d",
		compliant:     "Conforme : tous les cookies appartiennent à des services déclarés.",
		issuesOne:     "%[1]d problème détecté.",
		issuesOther:   "%[1]d problèmes détectés.",
		knownHeader:   "Services connus non déclarés (%d) :",
		unknownHeader: "Cookies inconnus (%d) :",
		knownLine:     "%s : service %s (%s), motif %s",
		knownAdvice:   "Ajoutez %s à vos services déclarés.",
		unknownAdvice: "Trouvez le script qui dépose ce cookie, puis déclarez son service ou supprimez-le.",
	},
	language.Spanish: {
		title:         "Informe de cumplimiento de cookies",
		scannedAt:     "Analizado el: %s",
		found:         "Cookies encontradas: %d",
		declared:      "Cookies declaradas: %d",
		compliant:     "Conforme: todas las cookies pertenecen a servicios declarados.",
		issuesOne:     "%[1]d problema encontrado.",
		issuesOther:   "%[1]d problemas encontrados.",
		knownHeader:   "Servicios conocidos no declarados (%d):",
		unknownHeader: "Cookies desconocidas (%d):",
		knownLine:     "%s: servicio %s (%s), patrón %s",
		knownAdvice:   "Añada %s a sus servicios declarados.",
		unknownAdvice: "Busque el script que crea esta cookie y declare su servicio o elimínelo.",
	},
}

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	must(b.Set(language.English, msgIssues,
		plural.Selectf(1, "%d", "one", "%[1]d issue found.", "other", "%[1]d issues found.")))

	for tag, tr := range translations {
		for key, msg := range map[string]string{
			msgTitle:         tr.title,
			msgScannedAt:     tr.scannedAt,
			msgFound:         tr.found,
			msgDeclared:      tr.declared,
			msgCompliant:     tr.compliant,
			msgKnownHeader:   tr.knownHeader,
			msgUnknownHeader: tr.unknownHeader,
			msgKnownLine:     tr.knownLine,
			msgKnownAdvice:   tr.knownAdvice,
			msgUnknownAdvice: tr.unknownAdvice,
		} {
			must(b.SetString(tag, key, msg))
		}
		must(b.Set(tag, msgIssues,
			plural.Selectf(1, "%d", "one", tr.issuesOne, "other", tr.issuesOther)))
	}
	return b
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("report: building message catalog: %v", err))
	}
}

// MatchLocale picks the supported language closest to locale, which may be
// a BCP 47 tag or an Accept-Language value. Unknown input falls back to
// English.
func MatchLocale(locale string) language.Tag {
	_, i := language.MatchStrings(matcher, locale)
	return supported[i]
}

func printer(locale string) *message.Printer {
	return message.NewPrinter(MatchLocale(locale), message.Catalog(messages))
}
