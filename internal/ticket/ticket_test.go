package ticket

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kds/internal/models"
)

func sampleOrder() models.Order {
	return models.Order{
		ID:       "665f1c2e9b1e8a0012abc123",
		Table:    &models.TableRef{Number: 12},
		Customer: &models.CustomerRef{ID: "c1", Name: "Asha"},
		Status:   models.StatusPlaced,
		Items: []models.OrderItem{
			{
				ID:       "i1",
				Product:  models.ProductRef{ID: "p1", Name: "Margherita"},
				Quantity: 2,
				Price:    decimal.NewFromInt(12),
				Status:   models.ItemStatusOrdered,
				SelectedAddons: []models.SelectedAddon{{
					Addon:    models.AddonChoice{Name: "Extra cheese", Price: decimal.NewFromInt(1)},
					SubAddon: &models.AddonChoice{Name: "Mozzarella", Price: decimal.Zero},
				}},
				SpecialInstructions: "well done",
			},
			{
				ID:       "i2",
				Product:  models.ProductRef{ID: "p2"},
				Quantity: 1,
				Price:    decimal.RequireFromString("3.5"),
				Status:   models.ItemStatusOrdered,
			},
		},
		TotalAmount:         decimal.RequireFromString("29.5"),
		SpecialInstructions: "Allergy: peanuts. Please keep the sauces separate from the main dishes.",
		CreatedAt:           time.Date(2024, 5, 1, 18, 45, 0, 0, time.UTC),
	}
}

func TestRenderLayout(t *testing.T) {
	out := Render(sampleOrder(), Options{Location: time.UTC})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	for _, line := range lines {
		assert.LessOrEqual(t, utf8.RuneCountInString(line), DefaultWidth, line)
	}
	assert.Equal(t, strings.Repeat("=", DefaultWidth), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ORDER #ABC123"))
	assert.True(t, strings.HasSuffix(lines[1], "PLACED"))
	assert.True(t, strings.HasPrefix(lines[2], "Table 12"))
	assert.True(t, strings.HasSuffix(lines[2], "18:45"))
	assert.Contains(t, out, "Customer: Asha")
	assert.Contains(t, out, "    + Extra cheese (Mozzarella)\n")
	assert.Contains(t, out, "    ! well done\n")
	assert.Contains(t, out, "NOTE: Allergy: peanuts.")

	var itemLine, fallbackLine, totalLine string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "2 x Margherita"):
			itemLine = line
		case strings.HasPrefix(line, "1 x p2"):
			fallbackLine = line
		case strings.HasPrefix(line, "TOTAL"):
			totalLine = line
		}
	}
	require.NotEmpty(t, itemLine)
	assert.True(t, strings.HasSuffix(itemLine, "26.00"))
	assert.True(t, strings.HasSuffix(fallbackLine, "3.50"))
	assert.True(t, strings.HasSuffix(totalLine, "29.50"))
	assert.Equal(t, strings.Repeat("=", DefaultWidth), lines[len(lines)-1])
}

func TestRenderTruncatesLongNames(t *testing.T) {
	order := sampleOrder()
	order.Items[0].Product.Name = strings.Repeat("Very Long Product Name ", 4)
	out := Render(order, Options{Width: 30, Location: time.UTC})

	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, utf8.RuneCountInString(line), 30, line)
	}
	assert.Contains(t, out, "~")
}

func TestRenderWithoutTable(t *testing.T) {
	order := sampleOrder()
	order.Table = nil
	order.Customer = nil
	out := Render(order, Options{Location: time.UTC})
	assert.Contains(t, out, "Takeaway")
	assert.NotContains(t, out, "Customer:")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "ABC123", ShortID("665f1c2e9b1e8a0012abc123"))
	assert.Equal(t, "A1", ShortID("a1"))
}

func TestRenderClampsWideRightColumn(t *testing.T) {
	order := sampleOrder()
	order.Status = "awaiting-external-courier-confirmation-x"
	order.Items[0].Price = decimal.RequireFromString("123456789012345678901234567890.25")
	order.TotalAmount = order.Items[0].Price.Mul(decimal.NewFromInt(2))

	var out string
	require.NotPanics(t, func() {
		out = Render(order, Options{Width: 24, Location: time.UTC})
	})
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, utf8.RuneCountInString(line), 24, line)
	}
	assert.Contains(t, out, "AWAITING-EXTERNAL-COURI~")
}
