package shipping

import (
	"strings"
	"time"
)

// Order is the local projection of a marketplace order, kept for label
// reprocessing. Field names of the recipient block follow the carrier
// payload (etiqueta_*).
type Order struct {
	OrderID     int64
	StoreID     int64
	OrderNumber string
	Recipient   Recipient
	UpdatedAt   time.Time
}

// Recipient is the shipping address printed on the packing slip.
type Recipient struct {
	Name         string
	Street       string // etiqueta_endereco
	Number       string // etiqueta_numero
	Neighborhood string // etiqueta_bairro
	Complement   string // etiqueta_complemento
	City         string // etiqueta_municipio
	State        string // etiqueta_uf
	PostalCode   string // etiqueta_cep
}

// NoNumber is printed when the address has no street number.
const NoNumber = "S/N"

// AddressLine joins street, number, neighborhood and complement with ", ",
// skipping empty parts. The number defaults to "S/N".
func (r Recipient) AddressLine() string {
	number := strings.TrimSpace(r.Number)
	if number == "" {
		number = NoNumber
	}
	return joinNonEmpty(", ", r.Street, number, r.Neighborhood, r.Complement)
}

// CityLine renders "City/UF - CEP 00000-000", skipping empty parts.
func (r Recipient) CityLine() string {
	place := joinNonEmpty("/", r.City, r.State)
	cep := ""
	if c := strings.TrimSpace(r.PostalCode); c != "" {
		cep = "CEP " + c
	}
	return joinNonEmpty(" - ", place, cep)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// LineItem is one product line of an order.
type LineItem struct {
	SKU         string
	Description string
	Quantity    float64
}

// Invoice is the fiscal document (NF-e) linked to an order.
type Invoice struct {
	OrderID   int64
	Number    string
	Series    string
	AccessKey string
	// IssuedAt is stored as wall-clock time and rendered without zone conversion.
	IssuedAt time.Time
}

// AccessKeyGroups splits the access key into 4-digit groups separated by
// single spaces.
func (i Invoice) AccessKeyGroups() string {
	key := strings.ReplaceAll(i.AccessKey, " ", "")
	var b strings.Builder
	for n, r := range key {
		if n > 0 && n%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LowestSKU returns the lexicographically smallest SKU of items, used as the
// sort key when orders are batched for picking.
func LowestSKU(items []LineItem) string {
	lowest := ""
	for i, it := range items {
		if i == 0 || it.SKU < lowest {
			lowest = it.SKU
		}
	}
	return lowest
}
