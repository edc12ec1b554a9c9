package importer_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/importer"
)

func TestParser_Parse(t *testing.T) {
	parser := importer.New(importer.Profile{
		Name:           "bank",
		Comma:          ',',
		DateFormat:     time.DateOnly,
		IDCol:          "Transaction ID",
		DateCol:        "Date",
		AmountCol:      "Amount",
		DescriptionCol: "Description",
		AccountCol:     "Account",
	})

	t.Run("ParsesRows", func(t *testing.T) {
		csv := strings.Join([]string{
			"Transaction ID,Date,Amount,Description,Account",
			"t-1,2026-03-01,\"1,250.00\",Salary,acc-77",
			"t-2,2026-03-02,-4.20,Coffee,acc-77",
		}, "\n")

		records, err := parser.Parse(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "t-1", records[0].TransactionID)
		assert.Equal(t, "1250.00", records[0].Amount)
		assert.Equal(t, "acc-77", records[0].AccountID)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), records[0].Date)

		assert.Equal(t, "-4.20", records[1].Amount)
		assert.Equal(t, "Coffee", records[1].Name)
	})

	t.Run("SkipsPreamble", func(t *testing.T) {
		csv := strings.Join([]string{
			"Statement export,,,,",
			"Period: March 2026,,,,",
			"Transaction ID,Date,Amount,Description,Account",
			"t-1,2026-03-01,10.00,Refund,acc-77",
		}, "\n")

		records, err := parser.Parse(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "t-1", records[0].TransactionID)
	})

	t.Run("MissingHeaderFails", func(t *testing.T) {
		_, err := parser.Parse(strings.NewReader("a,b,c\n1,2,3\n"))
		assert.Error(t, err)
	})

	t.Run("MissingTransactionIDFails", func(t *testing.T) {
		csv := strings.Join([]string{
			"Transaction ID,Date,Amount,Description,Account",
			",2026-03-01,10.00,Refund,acc-77",
		}, "\n")

		_, err := parser.Parse(strings.NewReader(csv))
		assert.Error(t, err)
	})

	t.Run("BadDateFails", func(t *testing.T) {
		csv := strings.Join([]string{
			"Transaction ID,Date,Amount,Description,Account",
			"t-1,yesterday,10.00,Refund,acc-77",
		}, "\n")

		_, err := parser.Parse(strings.NewReader(csv))
		assert.Error(t, err)
	})
}

func TestParser_EuropeanLayout(t *testing.T) {
	parser := importer.New(importer.Profile{
		Name:           "legacy",
		Comma:          ';',
		DateFormat:     "02.01.2006",
		IDCol:          "Referanse",
		DateCol:        "Dato",
		AmountCol:      "Beløp",
		DescriptionCol: "Forklaring",
	})

	csv := strings.Join([]string{
		"Referanse;Dato;Beløp;Forklaring",
		"ref-1;14.03.2026;1.234,56;Lønn",
		"ref-2;15.03.2026;-42,00;Dagligvarer",
	}, "\n")

	records, err := parser.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "1234.56", records[0].Amount)
	assert.Equal(t, "-42.00", records[1].Amount)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), records[0].Date)
}

func TestParsers(t *testing.T) {
	parsers := importer.Parsers()

	assert.Contains(t, parsers, "bank")
	assert.Contains(t, parsers, "legacy")
}
