package invoices

import (
	"encoding/csv"
	"io"
)

var csvHeader = []string{
	"Numéro", "Période", "Locataire", "Contrat", "Local", "Émission", "Échéance",
	"Montant", "Payé", "Reste dû", "Devise", "Statut",
}

// WriteCSV serialises invoices for spreadsheet use. Amounts use a dot decimal
// separator and dates ISO format.
func WriteCSV(w io.Writer, items []Invoice) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, inv := range items {
		if err := writer.Write([]string{
			inv.Number,
			inv.Period,
			inv.TenantName,
			inv.ContractTitle,
			inv.ShopNumber,
			inv.IssueDate.Format("2006-01-02"),
			inv.DueDate.Format("2006-01-02"),
			inv.AmountTotal.StringFixed(2),
			inv.PaidAmount.StringFixed(2),
			inv.Balance().StringFixed(2),
			inv.Currency,
			string(inv.Status),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
