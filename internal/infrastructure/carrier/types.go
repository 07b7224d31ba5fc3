package carrier

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
)

// issueDateLayout is the carrier's wall-clock timestamp format.
const issueDateLayout = "2006-01-02 15:04:05"

// text decodes JSON strings and numbers alike; the API is inconsistent
// about numeric identifiers.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = text(n.String())
	return nil
}

type ref struct {
	ID int64 `json:"id"`
}

// OrderSummary is one entry of the order listing.
type OrderSummary struct {
	ID          int64 `json:"id"`
	Number      text  `json:"numero"`
	StoreNumber text  `json:"numeroLoja"`
	Store       ref   `json:"loja"`
}

// LabelAddress is the recipient block the carrier prints on its label.
type LabelAddress struct {
	Name         string `json:"nome"`
	Street       string `json:"endereco"`
	Number       text   `json:"numero"`
	Complement   string `json:"complemento"`
	Neighborhood string `json:"bairro"`
	City         string `json:"municipio"`
	State        string `json:"uf"`
	PostalCode   string `json:"cep"`
}

// OrderItem is one product line of an order detail.
type OrderItem struct {
	Code        string  `json:"codigo"`
	Description string  `json:"descricao"`
	Quantity    float64 `json:"quantidade"`
}

// OrderDetail is the full order payload.
type OrderDetail struct {
	ID          int64       `json:"id"`
	Number      text        `json:"numero"`
	StoreNumber text        `json:"numeroLoja"`
	Store       ref         `json:"loja"`
	Contact     struct {
		Name string `json:"nome"`
	} `json:"contato"`
	Items     []OrderItem `json:"itens"`
	Invoice   ref         `json:"notaFiscal"`
	Transport struct {
		Label LabelAddress `json:"etiqueta"`
	} `json:"transporte"`
}

// OrderNumber is the marketplace order number when present, else the
// carrier's own sequential number.
func (d *OrderDetail) OrderNumber() string {
	if n := strings.TrimSpace(string(d.StoreNumber)); n != "" {
		return n
	}
	return strings.TrimSpace(string(d.Number))
}

// ToDomain converts the payload into the local projection for storeID.
func (d *OrderDetail) ToDomain(storeID int64) (*shipping.Order, []shipping.LineItem) {
	label := d.Transport.Label
	name := label.Name
	if name == "" {
		name = d.Contact.Name
	}
	order := &shipping.Order{
		OrderID:     d.ID,
		StoreID:     storeID,
		OrderNumber: d.OrderNumber(),
		Recipient: shipping.Recipient{
			Name:         name,
			Street:       label.Street,
			Number:       string(label.Number),
			Neighborhood: label.Neighborhood,
			Complement:   label.Complement,
			City:         label.City,
			State:        label.State,
			PostalCode:   label.PostalCode,
		},
		UpdatedAt: time.Now(),
	}
	items := make([]shipping.LineItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, shipping.LineItem{SKU: it.Code, Description: it.Description, Quantity: it.Quantity})
	}
	return order, items
}

// InvoiceDetail is the NF-e payload.
type InvoiceDetail struct {
	ID        int64  `json:"id"`
	Number    text   `json:"numero"`
	Series    text   `json:"serie"`
	AccessKey string `json:"chaveAcesso"`
	IssuedAt  string `json:"dataEmissao"`
}

// ToDomain converts the invoice for orderID. An unparseable issue date is
// kept as the zero time.
func (i *InvoiceDetail) ToDomain(orderID int64) *shipping.Invoice {
	issued, _ := time.Parse(issueDateLayout, i.IssuedAt)
	return &shipping.Invoice{
		OrderID:   orderID,
		Number:    string(i.Number),
		Series:    string(i.Series),
		AccessKey: i.AccessKey,
		IssuedAt:  issued,
	}
}

// LabelLink points to a carrier label ready for download.
type LabelLink struct {
	ID   text   `json:"id"`
	Link string `json:"link"`
}

// LabelID returns the carrier's label id as text.
func (l *LabelLink) LabelID() string {
	return string(l.ID)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
