package activity

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteCSV writes timeline entries with UTC RFC 3339 timestamps.
func WriteCSV(w io.Writer, rows []Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Date", "Utilisateur", "Email", "Action", "Entité", "Identifiant", "Local", "Détails"}); err != nil {
		return err
	}
	for _, e := range rows {
		shop := ""
		if e.ShopID > 0 {
			shop = strconv.FormatInt(e.ShopID, 10)
		}
		if err := writer.Write([]string{
			e.At.UTC().Format(time.RFC3339),
			e.Actor(),
			e.ActorEmail,
			e.Action,
			e.Entity,
			e.EntityID,
			shop,
			e.DetailsText(),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
