package repos

import (
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"agritrade/internal/domain"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	// Bid resolution runs multi-statement transactions; a single connection
	// keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	// Seed demo users/products/auctions if DB is empty (idempotent; safe to run every start)
	if err := seedUsers(db); err != nil {
		return nil, err
	}
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}

	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Users (identity is provisioned externally; we only hold tokens and roles)
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('FARMER','TRADER')),
  token_hash TEXT NOT NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

-- Products
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  farmer_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  quantity NUMERIC NOT NULL CHECK (quantity > 0),
  unit TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'LISTED' CHECK (status IN ('LISTED','IN_AUCTION','SOLD')),
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_farmer   ON products(farmer_id);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_status   ON products(status);

-- Auctions
CREATE TABLE IF NOT EXISTS auctions(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
  farmer_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  start_price NUMERIC NOT NULL CHECK (start_price >= 0),
  current_price NUMERIC NOT NULL,
  reserve_price NUMERIC NOT NULL DEFAULT 0,
  min_increment NUMERIC NOT NULL CHECK (min_increment >= 0),
  quantity NUMERIC NOT NULL CHECK (quantity > 0),
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE','ENDED','CANCELLED')),
  version INTEGER NOT NULL DEFAULT 0,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_auctions_product ON auctions(product_id);
CREATE INDEX IF NOT EXISTS idx_auctions_farmer  ON auctions(farmer_id);
CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_time);

-- Bids (terminal states are status values; rows are never deleted)
CREATE TABLE IF NOT EXISTS bids(
  id TEXT PRIMARY KEY,
  auction_id TEXT NOT NULL REFERENCES auctions(id) ON DELETE RESTRICT,
  bidder_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  bidder_name TEXT NOT NULL,
  amount NUMERIC NOT NULL CHECK (amount > 0),
  quantity NUMERIC NOT NULL CHECK (quantity > 0),
  status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','ACCEPTED','REJECTED','OUTBID')),
  is_highest_bid INTEGER NOT NULL DEFAULT 0,
  previous_bid_amount NUMERIC,
  expires_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id);
CREATE INDEX IF NOT EXISTS idx_bids_bidder  ON bids(bidder_id);
-- At most one pending highest bid per auction, enforced by the store itself.
CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_highest
  ON bids(auction_id) WHERE status='PENDING' AND is_highest_bid=1;

-- Orders (one per accepted bid; uniqueness backs accept idempotency)
CREATE TABLE IF NOT EXISTS orders(
  id TEXT PRIMARY KEY,
  bid_id TEXT NOT NULL UNIQUE REFERENCES bids(id),
  auction_id TEXT NOT NULL REFERENCES auctions(id),
  product_id TEXT NOT NULL REFERENCES products(id),
  farmer_id TEXT NOT NULL REFERENCES users(id),
  trader_id TEXT NOT NULL REFERENCES users(id),
  amount NUMERIC NOT NULL,
  quantity NUMERIC NOT NULL,
  total_amount NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'PLACED',
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_farmer ON orders(farmer_id);
CREATE INDEX IF NOT EXISTS idx_orders_trader ON orders(trader_id);

-- Notifications (fire-and-forget; no delivery guarantee)
CREATE TABLE IF NOT EXISTS notifications(
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  metadata_json TEXT,
  read INTEGER NOT NULL DEFAULT 0,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read);
`
	_, err := db.Exec(schema)
	return err
}

// seedUsers ensures two FARMERs and two TRADERs exist (idempotent). Tokens
// are what an external identity provider would hand out; demo values only.
func seedUsers(db *sqlx.DB) error {
	type u struct {
		ID, Name, Role, Hash string
	}
	mk := func(id, name, role, rawToken string) u {
		h, _ := bcrypt.GenerateFromPassword([]byte(rawToken), 10)
		return u{ID: id, Name: name, Role: role, Hash: string(h)}
	}

	users := []u{
		mk("f-ramesh", "Ramesh", domain.RoleFarmer, "farmer-token-ramesh"),
		mk("f-sita", "Sita", domain.RoleFarmer, "farmer-token-sita"),
		mk("t-arjun", "Arjun", domain.RoleTrader, "trader-token-arjun"),
		mk("t-meena", "Meena", domain.RoleTrader, "trader-token-meena"),
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, x := range users {
		if _, err := tx.Exec(`
			INSERT INTO users(id,name,role,token_hash)
			VALUES(?,?,?,?)
			ON CONFLICT(id) DO NOTHING
		`, x.ID, x.Name, x.Role, x.Hash); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo products/auctions")

	now := time.Now().UTC()
	start := now.Format(domain.TimeLayout)
	end := now.Add(48 * time.Hour).Format(domain.TimeLayout)

	tx := db.MustBegin()
	tx.MustExec(`INSERT INTO products(id,farmer_id,name,category,quantity,unit,status) VALUES
	  ('prod-wheat-01','f-ramesh','Sharbati Wheat','GRAIN',50,'quintal','IN_AUCTION'),
	  ('prod-onion-01','f-sita','Red Onion','PRODUCE',20,'quintal','IN_AUCTION'),
	  ('prod-rice-01','f-ramesh','Basmati Rice','GRAIN',30,'quintal','LISTED')`)

	tx.MustExec(`INSERT INTO auctions(id,product_id,farmer_id,start_price,current_price,reserve_price,min_increment,quantity,start_time,end_time,status) VALUES
	  ('auc-wheat-01','prod-wheat-01','f-ramesh',2000,2000,2200,50,50,?,?,'ACTIVE'),
	  ('auc-onion-01','prod-onion-01','f-sita',1500,1500,0,25,20,?,?,'ACTIVE')`,
		start, end, start, end)

	return tx.Commit()
}
