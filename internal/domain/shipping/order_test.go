package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipient_AddressLine(t *testing.T) {
	tests := []struct {
		name string
		r    Recipient
		want string
	}{
		{
			name: "missing number defaults to S/N",
			r:    Recipient{Street: "Rua A", Number: "", Neighborhood: "Centro"},
			want: "Rua A, S/N, Centro",
		},
		{
			name: "all parts",
			r:    Recipient{Street: "Av. Brasil", Number: "100", Neighborhood: "Jardim", Complement: "Apto 3"},
			want: "Av. Brasil, 100, Jardim, Apto 3",
		},
		{
			name: "blank parts are skipped",
			r:    Recipient{Street: "Rua B", Number: " 7 ", Neighborhood: "  ", Complement: "Fundos"},
			want: "Rua B, 7, Fundos",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.AddressLine())
		})
	}
}

func TestRecipient_CityLine(t *testing.T) {
	assert.Equal(t, "Campinas/SP - CEP 13000-000",
		Recipient{City: "Campinas", State: "SP", PostalCode: "13000-000"}.CityLine())
	assert.Equal(t, "Campinas", Recipient{City: "Campinas"}.CityLine())
	assert.Equal(t, "CEP 13000-000", Recipient{PostalCode: "13000-000"}.CityLine())
}

func TestInvoice_AccessKeyGroups(t *testing.T) {
	inv := Invoice{AccessKey: "35240112345678000190550010000012341000012345"}
	assert.Equal(t, "3524 0112 3456 7800 0190 5500 1000 0012 3410 0001 2345", inv.AccessKeyGroups())
	assert.Equal(t, "", Invoice{}.AccessKeyGroups())
}

func TestLowestSKU(t *testing.T) {
	assert.Equal(t, "A-1", LowestSKU([]LineItem{{SKU: "C"}, {SKU: "A-1"}, {SKU: "B"}}))
	assert.Equal(t, "", LowestSKU(nil))
}
