package migrate_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-cart/pkg/migrate"
)

// The catalog repository maps these columns; keep them in step with pkg/db/models.
func TestCatalogSchemaStatements(t *testing.T) {
	cases := map[string][]string{
		"*_create_products_table.sql": {
			"CREATE TYPE inventory_status AS ENUM ('in_stock', 'out_of_stock', 'discontinued')",
			"CREATE TABLE IF NOT EXISTS products",
			"price numeric(14,2) NOT NULL",
			"categories jsonb NOT NULL DEFAULT '[]'::jsonb",
			"is_active boolean NOT NULL DEFAULT true",
			"CREATE INDEX IF NOT EXISTS idx_products_is_active",
			"DROP TABLE IF EXISTS products",
		},
		"*_create_inventory_items.sql": {
			"CREATE TABLE IF NOT EXISTS inventory_items",
			"product_id text PRIMARY KEY",
			"CONSTRAINT inventory_items_product_fk",
			"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
			"CHECK (available_qty >= 0)",
			"CHECK (reserved_qty >= 0)",
			"DROP TABLE IF EXISTS inventory_items",
		},
	}

	files := migrate.Files()
	for pattern, statements := range cases {
		t.Run(pattern, func(t *testing.T) {
			matches, err := fs.Glob(files, pattern)
			require.NoError(t, err)
			require.Len(t, matches, 1)

			body, err := fs.ReadFile(files, matches[0])
			require.NoError(t, err)
			for _, stmt := range statements {
				assert.Contains(t, string(body), stmt)
			}
		})
	}
}
