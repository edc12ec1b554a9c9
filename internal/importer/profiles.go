package importer

import "time"

// Stock statement layouts. New banks only need a Profile here.
var profiles = map[string]Profile{
	"bank": {
		Name:           "bank",
		Comma:          ',',
		DateFormat:     time.DateOnly,
		IDCol:          "Transaction ID",
		DateCol:        "Date",
		AmountCol:      "Amount",
		DescriptionCol: "Description",
		AccountCol:     "Account",
	},
	"legacy": {
		Name:           "legacy",
		Comma:          ';',
		DateFormat:     "02.01.2006",
		IDCol:          "Referanse",
		DateCol:        "Dato",
		AmountCol:      "Beløp",
		DescriptionCol: "Forklaring",
	},
}

// Parsers returns a ready parser per supported statement provider.
func Parsers() map[string]*Parser {
	parsers := make(map[string]*Parser, len(profiles))
	for tag, profile := range profiles {
		parsers[tag] = New(profile)
	}

	return parsers
}
