package domain

type User struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Role      string `db:"role" json:"role"` // FARMER | TRADER
	TokenHash string `db:"token_hash" json:"-"`
}

const (
	RoleFarmer = "FARMER"
	RoleTrader = "TRADER"
)
