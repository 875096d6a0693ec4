package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-fruver/internal/catalog"
	"github.com/noah-isme/backend-fruver/internal/obs"
	"github.com/noah-isme/backend-fruver/internal/pricing"
)

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	products := seedProducts()
	for _, p := range products {
		if err := catalog.ValidateProduct(p); err != nil {
			logger.Fatal().Err(err).Str("product", p.Name).Msg("invalid seed product")
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("begin seed transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := seedUsers(ctx, tx, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed users")
	}
	for _, p := range products {
		if err := seedProduct(ctx, tx, p); err != nil {
			logger.Fatal().Err(err).Str("product", p.Name).Msg("seed product")
		}
		logger.Info().Str("product", p.Name).Int("variations", len(p.Variations)).Msg("product seeded")
	}
	if err := tx.Commit(); err != nil {
		logger.Fatal().Err(err).Msg("commit seed transaction")
	}
	logger.Info().Msg("seeding completed")
}

type seedUser struct {
	Name, Email, Type string
	Company           [3]string
}

func seedUsers(ctx context.Context, tx *sql.Tx, logger zerolog.Logger) error {
	users := []seedUser{
		{Name: "Admin Fruver", Email: "admin@fruver.co", Type: "admin"},
		{Name: "Laura Gómez", Email: "laura@example.com", Type: "home"},
		{Name: "Mercados La 14", Email: "compras@la14.example.com", Type: "supermarket",
			Company: [3]string{"Mercados La 14 S.A.S.", "900123456-7", "Cra 100 # 5-169, Cali"}},
		{Name: "Restaurante El Fogón", Email: "pedidos@elfogon.example.com", Type: "restaurant",
			Company: [3]string{"El Fogón S.A.S.", "901987654-3", "Calle 10 # 4-21, Bogotá"}},
		{Name: "Fruver Don Pepe", Email: "donpepe@example.com", Type: "fruver"},
	}
	for _, u := range users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (name, email, user_type, company_name, company_nit, company_address)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
			ON CONFLICT (email) DO NOTHING`,
			u.Name, u.Email, u.Type, u.Company[0], u.Company[1], u.Company[2])
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
	}
	logger.Info().Int("users", len(users)).Msg("users seeded")
	return nil
}

func seedProduct(ctx context.Context, tx *sql.Tx, p catalog.Product) error {
	var productID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE lower(name) = lower($1)`, p.Name).Scan(&productID)
	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO products (name, category, active, promotion)
			VALUES ($1, $2, $3, $4)
			RETURNING id`, p.Name, p.Category, p.Active, p.Promotion).Scan(&productID)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find product: %w", err)
	}

	for _, v := range p.Variations {
		var variationID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM product_variations WHERE product_id = $1 AND lower(quality) = lower($2)`,
			productID, v.Quality).Scan(&variationID)
		switch {
		case err == sql.ErrNoRows:
			err = tx.QueryRowContext(ctx, `
				INSERT INTO product_variations (product_id, quality, active)
				VALUES ($1, $2, $3)
				RETURNING id`, productID, v.Quality, v.Active).Scan(&variationID)
			if err != nil {
				return fmt.Errorf("insert variation %q: %w", v.Quality, err)
			}
		case err != nil:
			return fmt.Errorf("find variation %q: %w", v.Quality, err)
		}

		for _, pr := range v.Presentations {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO presentations (variation_id, label, stock, price_home, price_supermarket, price_restaurant, price_fruver)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (variation_id, lower(label)) DO UPDATE SET
					stock = EXCLUDED.stock,
					price_home = EXCLUDED.price_home,
					price_supermarket = EXCLUDED.price_supermarket,
					price_restaurant = EXCLUDED.price_restaurant,
					price_fruver = EXCLUDED.price_fruver`,
				variationID, pr.Label, pr.Stock,
				nullPrice(pr.Prices.Home), nullPrice(pr.Prices.Supermarket),
				nullPrice(pr.Prices.Restaurant), nullPrice(pr.Prices.Fruver))
			if err != nil {
				return fmt.Errorf("upsert presentation %q: %w", pr.Label, err)
			}
		}
	}
	return nil
}

func nullPrice(m pricing.Money) sql.NullInt64 {
	return sql.NullInt64{Int64: m, Valid: m > 0}
}

func pres(label string, stock int32, home, supermarket, restaurant, fruver pricing.Money) catalog.Presentation {
	return catalog.Presentation{
		Label: label,
		Stock: stock,
		Prices: pricing.TierPrices{
			Home:        home,
			Supermarket: supermarket,
			Restaurant:  restaurant,
			Fruver:      fruver,
		},
	}
}

func seedProducts() []catalog.Product {
	return []catalog.Product{
		{Name: "Mango Tommy", Category: "Frutas", Active: true, Promotion: true, Variations: []catalog.Variation{
			{Quality: "Primera", Active: true, Presentations: []catalog.Presentation{
				pres("1 kg", 120, 9800, 8900, 8600, 8200),
				pres("Canastilla 20 kg", 15, 0, 165000, 160000, 152000),
			}},
			{Quality: "Segunda", Active: true, Presentations: []catalog.Presentation{
				pres("1 kg", 80, 6500, 5900, 5700, 5400),
			}},
		}},
		{Name: "Lulo", Category: "Frutas", Active: true, Variations: []catalog.Variation{
			{Quality: "Única", Active: true, Presentations: []catalog.Presentation{
				pres("500 g", 60, 4200, 3900, 0, 3600),
				pres("1 kg", 60, 7900, 7400, 7100, 6800),
			}},
		}},
		{Name: "Aguacate Hass", Category: "Frutas", Active: true, Variations: []catalog.Variation{
			{Quality: "Extra", Active: true, Presentations: []catalog.Presentation{
				pres("Unidad", 300, 2500, 2200, 2100, 1900),
				pres("Caja 10 kg", 20, 0, 0, 95000, 90000),
			}},
		}},
		{Name: "Tomate Chonto", Category: "Verduras", Active: true, Variations: []catalog.Variation{
			{Quality: "Primera", Active: true, Presentations: []catalog.Presentation{
				pres("1 kg", 200, 4800, 4300, 4100, 3900),
				pres("Bulto 25 kg", 10, 0, 98000, 95000, 90000),
			}},
		}},
		{Name: "Papa Pastusa", Category: "Tubérculos", Active: true, Variations: []catalog.Variation{
			{Quality: "Gruesa", Active: true, Presentations: []catalog.Presentation{
				pres("2.5 kg", 150, 7500, 6800, 6500, 6100),
				pres("Bulto 50 kg", 8, 0, 0, 118000, 112000),
			}},
			{Quality: "Pareja", Active: false, Presentations: []catalog.Presentation{
				pres("2.5 kg", 0, 6200, 5600, 5300, 5000),
			}},
		}},
	}
}
