package domain

// ExportHeader is the fixed column order of the transaction CSV export.
var ExportHeader = []string{
	"Transaction ID",
	"Date",
	"Name",
	"Description",
	"Currency",
	"Amount",
	"Category",
}

// ExportDateFormat is the DD/MM/YYYY date format of the export.
const ExportDateFormat = "02/01/2006"

// ExportRow is one banking API transaction projected onto the export columns.
type ExportRow struct {
	TransactionID string
	Date          string
	Name          string
	Description   string
	Currency      string
	Amount        string // Major units, two decimals
	Category      string
}

// Values returns the row in ExportHeader order.
func (r ExportRow) Values() []string {
	return []string{r.TransactionID, r.Date, r.Name, r.Description, r.Currency, r.Amount, r.Category}
}
