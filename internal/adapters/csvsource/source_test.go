package csvsource_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SscSPs/bank_importers/internal/adapters/csvsource"
	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monzoCSV = `Transaction ID,Date,Name,Description,Currency,Amount,Category
tx_0001,01/03/2024,Pret A Manger,Lunch #work,GBP,-4.50,Eating out
tx_0002,02/03/2024,Savings Pot,Round up,GBP,20.00,Savings

tx_0003,03/03/2024,Active card check,,GBP,0.00,General
`

// Nationwide statements are ISO-8859-1; \xa3 is the pound sign.
const nationwideCSV = "\"Account Name:\",\"FlexDirect ****01234\"\r\n" +
	"\"Account Balance:\",\"\xa31,000.00\"\r\n" +
	"\"Available Balance: \",\"\xa31,000.00\"\r\n" +
	"\r\n" +
	"\"Date\",\"Transaction type\",\"Description\",\"Paid out\",\"Paid in\",\"Balance\"\r\n" +
	"\"01 Mar 2024\",\"Contactless Payment\",\"O2 UK\",\"\xa312.00\",\"\",\"\xa3988.00\"\r\n" +
	"\"02 Mar 2024\",\"Bank credit\",\"Employer\",\"\",\"\xa32,000.00\",\"\xa32,988.00\"\r\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMonzoLayout_Read(t *testing.T) {
	src := csvsource.New(csvsource.MonzoLayout())
	path := writeFile(t, "monzo.csv", monzoCSV)

	records, err := src.Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, path, first.File)
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "Pret A Manger", first.Payee)
	assert.Equal(t, "Lunch #work", first.Narration)
	assert.True(t, decimal.RequireFromString("-4.50").Equal(first.Amount))
	assert.Equal(t, "GBP", first.Currency)
	assert.Equal(t, "tx_0001", first.Link)
	assert.Equal(t, "Eating out", first.Field(domain.FieldCategory))

	assert.Equal(t, 5, records[2].Line)
	assert.True(t, records[2].Amount.IsZero())
}

func TestMonzoLayout_Identify(t *testing.T) {
	src := csvsource.New(csvsource.MonzoLayout())

	assert.True(t, src.Identify(writeFile(t, "monzo_01-03-2024_31-03-2024.csv", monzoCSV)))
	assert.True(t, src.Identify(writeFile(t, "bom.csv", "\ufeff"+monzoCSV)))
	assert.False(t, src.Identify(writeFile(t, "statement.xlsx", monzoCSV)))
	assert.False(t, src.Identify(writeFile(t, "Statement Download 2024-Mar-02.csv", nationwideCSV)))
	assert.False(t, src.Identify(filepath.Join(t.TempDir(), "missing.csv")))
}

func TestNationwideLayout_Read(t *testing.T) {
	src := csvsource.New(csvsource.NationwideLayout())
	path := writeFile(t, "statement.csv", nationwideCSV)

	records, err := src.Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	out := records[0]
	assert.Equal(t, 6, out.Line)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), out.Date)
	assert.Equal(t, "O2 UK", out.Payee)
	assert.Equal(t, "O2 UK", out.Narration)
	assert.Equal(t, "Contactless Payment", out.Field(domain.FieldTxType))
	assert.Equal(t, "988.00", out.Field(domain.FieldBalance))
	assert.True(t, decimal.RequireFromString("-12.00").Equal(out.Amount))
	assert.Empty(t, out.Currency)

	in := records[1]
	assert.True(t, decimal.RequireFromString("2000.00").Equal(in.Amount))
}

func TestNationwideLayout_Identify(t *testing.T) {
	src := csvsource.New(csvsource.NationwideLayout())

	assert.True(t, src.Identify(writeFile(t, "Statement Download 2024-Mar-02.csv", nationwideCSV)))
	assert.True(t, src.Identify(writeFile(t, "statement.txt", nationwideCSV)))
	assert.False(t, src.Identify(writeFile(t, "monzo.csv", monzoCSV)))
	assert.False(t, src.Identify(writeFile(t, "empty.csv", "")))
}

func TestLayout_Identify(t *testing.T) {
	monzo := csvsource.MonzoLayout()
	tests := []struct {
		name      string
		path      string
		firstLine string
		want      bool
	}{
		{"names row", "a.csv", "Transaction ID,Date,Name,Description,Currency,Amount,Category", true},
		{"quoted names row", "a.csv", `"Date","Transaction ID","Category"`, true},
		{"missing category", "a.csv", "Transaction ID,Date,Name,Amount", false},
		{"wrong suffix", "a.pdf", "Transaction ID,Category", false},
		{"nationwide preamble", "a.csv", `"Account Name:","FlexDirect ****01234"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, monzo.Identify(tt.path, tt.firstLine))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		layout  csvsource.Layout
		input   string
		wantErr string
	}{
		{
			name:    "bad date",
			layout:  csvsource.MonzoLayout(),
			input:   "Transaction ID,Date,Name,Description,Currency,Amount,Category\ntx_1,2024-03-01,A,B,GBP,1.00,\n",
			wantErr: "in.csv:2: invalid date",
		},
		{
			name:    "bad amount",
			layout:  csvsource.MonzoLayout(),
			input:   "Transaction ID,Date,Name,Description,Currency,Amount,Category\ntx_1,01/03/2024,A,B,GBP,abc,\n",
			wantErr: "invalid amount",
		},
		{
			name:    "missing column",
			layout:  csvsource.MonzoLayout(),
			input:   "Date,Name,Amount\n01/03/2024,A,1.00\n",
			wantErr: "missing column",
		},
		{
			name:    "credit and debit",
			layout:  csvsource.NationwideLayout(),
			input:   "\n\n\n\nDate,Type,Description,Out,In,Balance\n01 Mar 2024,X,Y,1.00,2.00,3.00\n",
			wantErr: "both credit",
		},
		{
			name:    "neither credit nor debit",
			layout:  csvsource.NationwideLayout(),
			input:   "\n\n\n\nDate,Type,Description,Out,In,Balance\n01 Mar 2024,X,Y,,,3.00\n",
			wantErr: "in.csv:6: neither credit nor debit",
		},
		{
			name:    "short row",
			layout:  csvsource.NationwideLayout(),
			input:   "\n\n\n\nDate,Type,Description,Out,In,Balance\n01 Mar 2024,X\n",
			wantErr: "row has no column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := csvsource.New(tt.layout).Parse(context.Background(), strings.NewReader(tt.input), "in.csv")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_EmptyInput(t *testing.T) {
	records, err := csvsource.New(csvsource.NationwideLayout()).Parse(context.Background(), strings.NewReader("only one line\n"), "in.csv")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := csvsource.New(csvsource.MonzoLayout()).Parse(ctx, strings.NewReader(monzoCSV), "in.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForSource(t *testing.T) {
	_, err := csvsource.ForSource("monzo")
	assert.NoError(t, err)
	_, err = csvsource.ForSource("barclays")
	assert.Error(t, err)
}
