package database

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// schema is applied in order.  Every statement is idempotent so Migrate
// can run on each start.
var schema = []struct {
	name string
	stmt string
}{
	{"catalog_items", `
CREATE TABLE IF NOT EXISTS catalog_items (
	id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	title       VARCHAR(255)   NOT NULL,
	description TEXT           NOT NULL,
	image_url   VARCHAR(1024)  NOT NULL,
	price       DECIMAL(12,2)  NOT NULL,
	stock       INT            NOT NULL DEFAULT 0,
	created_at  DATETIME(6)    NOT NULL,
	updated_at  DATETIME(6)    NOT NULL,
	CONSTRAINT chk_catalog_stock_non_negative CHECK (stock >= 0),
	CONSTRAINT chk_catalog_price_non_negative CHECK (price >= 0),
	KEY idx_catalog_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"reservations", `
CREATE TABLE IF NOT EXISTS reservations (
	id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	customer_name  VARCHAR(255)  NOT NULL,
	address        VARCHAR(512)  NOT NULL,
	national_id    VARCHAR(64)   NOT NULL,
	total_quantity INT           NOT NULL,
	total_price    DECIMAL(12,2) NOT NULL,
	status         VARCHAR(16)   NOT NULL,
	paid_amount    DECIMAL(12,2) NOT NULL DEFAULT 0,
	payment_ref    VARCHAR(64)   NULL,
	version        INT           NOT NULL DEFAULT 1,
	created_at     DATETIME(6)   NOT NULL,
	updated_at     DATETIME(6)   NOT NULL,
	KEY idx_reservations_nid (national_id),
	KEY idx_reservations_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"reservation_items", `
CREATE TABLE IF NOT EXISTS reservation_items (
	reservation_id BIGINT UNSIGNED NOT NULL,
	position       INT             NOT NULL,
	item_id        BIGINT UNSIGNED NOT NULL,
	quantity       INT             NOT NULL,
	unit_price     DECIMAL(12,2)   NOT NULL,
	PRIMARY KEY (reservation_id, position),
	CONSTRAINT fk_items_reservation FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE,
	CONSTRAINT chk_items_quantity_positive CHECK (quantity > 0)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"payments", `
CREATE TABLE IF NOT EXISTS payments (
	id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	reservation_id  BIGINT UNSIGNED NOT NULL,
	amount          DECIMAL(12,2)   NOT NULL,
	method          VARCHAR(16)     NOT NULL,
	transaction_ref VARCHAR(64)     NOT NULL,
	status          VARCHAR(16)     NOT NULL,
	created_at      DATETIME(6)     NOT NULL,
	updated_at      DATETIME(6)     NOT NULL,
	UNIQUE KEY uq_payments_ref (transaction_ref),
	KEY idx_payments_reservation (reservation_id, created_at),
	KEY idx_payments_status_created (status, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	log.Info("migration started")
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s.stmt); err != nil {
			log.Error("migration failed", zap.String("table", s.name), zap.Error(err))
			return err
		}
		log.Debug("table ready", zap.String("table", s.name))
	}
	log.Info("migration finished", zap.Int("tables", len(schema)))
	return nil
}
