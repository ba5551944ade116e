package view

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rentdesk/rentdesk/internal/shared"
)

var frenchPrinter = message.NewPrinter(language.French)

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"MAD": "MAD",
	"XAF": "FCFA",
}

// FormatMoney renders an amount the way the console displays it: XAF without
// decimals ("1 234 FCFA"), other currencies with French grouping and two
// decimals ("1 234,50 €").
func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency
	}
	if currency == "XAF" {
		return frenchPrinter.Sprintf("%d", amount.Round(0).IntPart()) + " " + symbol
	}
	f, _ := amount.Round(2).Float64()
	formatted := frenchPrinter.Sprintf("%.2f", f)
	if symbol == "" {
		return formatted
	}
	return formatted + " " + symbol
}

var labels = map[string]map[string]string{
	"shop": {
		"vacant":           "Vacant",
		"occupied":         "Occupé",
		"under_renovation": "En rénovation",
	},
	"contract": {
		"pending":    "En attente",
		"active":     "Actif",
		"terminated": "Résilié",
		"expired":    "Expiré",
	},
	"contract_type": {
		"commercial":  "Commercial",
		"residential": "Résidentiel",
		"mixed":       "Mixte",
	},
	"invoice": {
		"unpaid":    "Impayée",
		"partial":   "Partielle",
		"paid":      "Payée",
		"overdue":   "En retard",
		"cancelled": "Annulée",
	},
	"method": {
		"bank_transfer": "Virement",
		"cash":          "Espèces",
		"check":         "Chèque",
		"mobile_money":  "Mobile money",
		"card":          "Carte",
	},
	"role": {
		"admin":      "Administrateur",
		"manager":    "Gestionnaire",
		"accountant": "Comptable",
	},
	"action": {
		"create": "Création",
		"update": "Modification",
		"delete": "Suppression",
		"login":  "Connexion",
		"logout": "Déconnexion",
		"system": "Système",
	},
}

var badges = map[string]string{
	"vacant": "badge-neutral", "occupied": "badge-success", "under_renovation": "badge-warning",
	"pending": "badge-warning", "active": "badge-success", "terminated": "badge-danger", "expired": "badge-neutral",
	"unpaid": "badge-warning", "partial": "badge-info", "paid": "badge-success", "overdue": "badge-danger", "cancelled": "badge-neutral",
	"create": "badge-success", "update": "badge-info", "delete": "badge-danger", "login": "badge-neutral", "logout": "badge-neutral", "system": "badge-warning",
}

// Label translates an enum value of the given kind.
func Label(kind, value string) string {
	if set, ok := labels[kind]; ok {
		if l, ok := set[value]; ok {
			return l
		}
	}
	return value
}

// Options lists the values of kind in display order for <select> elements.
func Options(kind string) []string {
	switch kind {
	case "shop":
		return []string{"vacant", "occupied", "under_renovation"}
	case "contract":
		return []string{"pending", "active", "terminated", "expired"}
	case "contract_type":
		return []string{"commercial", "residential", "mixed"}
	case "invoice":
		return []string{"unpaid", "partial", "paid", "overdue", "cancelled"}
	case "method":
		return []string{"bank_transfer", "cash", "check", "mobile_money", "card"}
	case "role":
		return []string{"admin", "manager", "accountant"}
	case "action":
		return []string{"create", "update", "delete", "login", "logout", "system"}
	case "currency":
		return append([]string(nil), shared.SupportedCurrencies...)
	}
	return nil
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": formatDate,
		"formatDatePtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return formatDate(*t)
		},
		"formatDateTime": formatDateTime,
		"formatDateTimePtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return formatDateTime(*t)
		},
		"inputDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(shared.DateLayout)
		},
		"inputDatePtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(shared.DateLayout)
		},
		"money":   FormatMoney,
		"label":   Label,
		"options": Options,
		"badge": func(value string) string {
			if b, ok := badges[value]; ok {
				return b
			}
			return "badge-neutral"
		},
		"pageURL": func(u url.Values, path string, page int) string {
			q := url.Values{}
			for k, v := range u {
				q[k] = v
			}
			q.Set("page", strconv.Itoa(page))
			return path + "?" + q.Encode()
		},
		"decimalInput": func(d decimal.Decimal) string {
			if d.IsZero() {
				return ""
			}
			return d.StringFixed(2)
		},
		"idStr": func(id int64) string {
			if id == 0 {
				return ""
			}
			return strconv.FormatInt(id, 10)
		},
	}
}
