package catalog

import (
	"github.com/jackc/pgx/v5/pgtype"

	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// Product is a catalog entry with its quality variations.
type Product struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name" validate:"required"`
	Category   string      `json:"category"`
	Active     bool        `json:"active"`
	Promotion  bool        `json:"promotion"`
	Variations []Variation `json:"variations" validate:"dive"`
}

// Variation is a quality grade of a product.
type Variation struct {
	ID            int64          `json:"id"`
	ProductID     int64          `json:"productId"`
	Quality       string         `json:"quality" validate:"required"`
	Active        bool           `json:"active"`
	Presentations []Presentation `json:"presentations" validate:"required,min=1,dive"`
}

// Presentation is the finest-grained purchasable unit of a variation.
type Presentation struct {
	ID          int64              `json:"id"`
	VariationID int64              `json:"variationId"`
	Label       string             `json:"label" validate:"required"`
	Stock       int32              `json:"stock" validate:"gte=0"`
	Prices      pricing.TierPrices `json:"prices"`
}

// Selection is the live catalog view of one presentation, as picked by a shopper.
type Selection struct {
	ProductID      int64              `json:"productId"`
	ProductName    string             `json:"productName"`
	VariationID    int64              `json:"variationId"`
	Quality        string             `json:"quality"`
	PresentationID int64              `json:"presentationId"`
	Presentation   string             `json:"presentation"`
	Stock          int32              `json:"stock"`
	Prices         pricing.TierPrices `json:"prices"`
}

// TierProduct is the shopper-facing product view carrying only the caller's price.
type TierProduct struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Promotion  bool            `json:"promotion"`
	Tier       pricing.Tier    `json:"tier"`
	Variations []TierVariation `json:"variations"`
}

// TierVariation lists the presentations of a variation offered to a tier.
type TierVariation struct {
	ID            int64              `json:"id"`
	Quality       string             `json:"quality"`
	Presentations []TierPresentation `json:"presentations"`
}

// TierPresentation is a presentation priced for one tier.
type TierPresentation struct {
	ID    int64         `json:"id"`
	Label string        `json:"label"`
	Stock int32         `json:"stock"`
	Price pricing.Money `json:"price"`
}

// GroupRows assembles joined variation/presentation rows into variations keyed by product id.
// Variations without presentations are kept so callers can see them as unpurchasable.
func GroupRows(rows []dbgen.ListCatalogRowsRow) map[int64][]Variation {
	out := make(map[int64][]Variation)
	index := make(map[int64]int)
	for _, row := range rows {
		pos, ok := index[row.VariationID]
		if !ok {
			out[row.ProductID] = append(out[row.ProductID], Variation{
				ID:        row.VariationID,
				ProductID: row.ProductID,
				Quality:   row.Quality,
				Active:    row.VariationActive,
			})
			pos = len(out[row.ProductID]) - 1
			index[row.VariationID] = pos
		}
		if !row.PresentationID.Valid {
			continue
		}
		v := &out[row.ProductID][pos]
		v.Presentations = append(v.Presentations, Presentation{
			ID:          row.PresentationID.Int64,
			VariationID: row.VariationID,
			Label:       row.Label.String,
			Stock:       row.Stock.Int32,
			Prices: tierPrices(
				row.PriceHome,
				row.PriceSupermarket,
				row.PriceRestaurant,
				row.PriceFruver,
			),
		})
	}
	return out
}

// FindPresentation locates a presentation by variation and presentation id.
func FindPresentation(variations []Variation, variationID, presentationID int64) (Variation, Presentation, bool) {
	for _, v := range variations {
		if v.ID != variationID {
			continue
		}
		for _, p := range v.Presentations {
			if p.ID == presentationID {
				return v, p, true
			}
		}
		return v, Presentation{}, false
	}
	return Variation{}, Presentation{}, false
}

func tierPrices(home, supermarket, restaurant, fruver pgtype.Int8) pricing.TierPrices {
	return pricing.TierPrices{
		Home:        home.Int64,
		Supermarket: supermarket.Int64,
		Restaurant:  restaurant.Int64,
		Fruver:      fruver.Int64,
	}
}
