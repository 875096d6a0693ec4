package dbgen

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64
	Name        string
	Category    string
	Description string
	Active      bool
	Promotion   bool
	CreatedAt   pgtype.Timestamptz
}

type ProductVariation struct {
	ID        int64
	ProductID int64
	Quality   string
	Active    bool
}

type Presentation struct {
	ID               int64
	VariationID      int64
	Label            string
	Stock            int32
	PriceHome        pgtype.Int8
	PriceSupermarket pgtype.Int8
	PriceRestaurant  pgtype.Int8
	PriceFruver      pgtype.Int8
}

type CustomerType struct {
	Tier         string
	Name         string
	ShippingCost decimal.Decimal
	UpdatedAt    pgtype.Timestamptz
}

type MinimumOrder struct {
	Tier      string
	Amount    int64
	UpdatedAt pgtype.Timestamptz
}

type User struct {
	ID             int64
	Name           string
	Email          string
	UserType       string
	CompanyName    pgtype.Text
	CompanyNit     pgtype.Text
	CompanyAddress pgtype.Text
	CreatedAt      pgtype.Timestamptz
}

type Order struct {
	ID                        int64
	UserID                    pgtype.Int8
	OrderDate                 pgtype.Timestamptz
	StatusID                  int16
	Tier                      string
	Total                     int64
	ShippingCost              int64
	ShippingRate              decimal.Decimal
	RequiresElectronicInvoice bool
	CompanyName               pgtype.Text
	CompanyNit                pgtype.Text
	CompanyAddress            pgtype.Text
	Notes                     pgtype.Text
	UpdatedAt                 pgtype.Timestamptz
}

type OrderItem struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	VariationID    int64
	PresentationID int64
	Presentation   string
	Quality        string
	Quantity       int32
	Price          int64
}

type DomainEvent struct {
	ID          int64
	Topic       string
	AggregateID int64
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
