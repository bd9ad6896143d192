package models

import "time"

// User is a provisioned account. Rows live in the users table, partitioned
// by user_bucket; email_to_user and phone_to_user rows provide unique
// lookups.
type User struct {
	UserBucket   int       `db:"user_bucket" json:"-"`
	UserID       string    `db:"user_id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PhoneNumber  int64     `db:"phone_number" json:"phone_number"`
	PasswordHash string    `db:"password_hash" json:"-"`
	ReferralCode string    `db:"referral_code" json:"referral_code,omitempty"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PendingUser is the not-yet-created account held inside a signup
// verification session. The password travels in plaintext only inside the
// encrypted session payload; it is digested at provisioning time.
type PendingUser struct {
	Email        string `json:"email"`
	PhoneNumber  int64  `json:"phone_number"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
	IsAdmin      bool   `json:"is_admin"`
}

// SignupSession is the stored form of a pending verification session: the
// encrypted payload, the digest of the correct code, and the failed-attempt
// counter. Terminal states are not stored; a terminated session is simply
// gone.
type SignupSession struct {
	Payload   string
	OTPDigest string
	Attempts  int64
}

// Food is a catalog item. Base dishes and variant items (side proteins,
// extra sides) share this table.
type Food struct {
	FoodID            int64     `db:"food_id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       string    `db:"description" json:"description"`
	Price             int64     `db:"price" json:"price"`
	ImageURL          string    `db:"image_url" json:"image_url"`
	Category          string    `db:"category" json:"category"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// VariantSelection is the fixed-shape variant tuple of a cart line. Each
// slot holds one selected variant item or zero for "none". Zero doubles as
// the empty marker because the slots are Scylla clustering columns, which
// cannot hold null.
type VariantSelection struct {
	SideProteinID int64 `db:"side_protein_id" json:"side_protein_id"`
	ExtraSideID   int64 `db:"extra_side_id" json:"extra_side_id"`
}

// Equal reports exact per-slot equality, including both slots being empty.
func (v VariantSelection) Equal(o VariantSelection) bool {
	return v.SideProteinID == o.SideProteinID && v.ExtraSideID == o.ExtraSideID
}

// CartLine is one merged entry of an owner's cart. Identity is the
// composite key (owner, food, variant selection); at most one line exists
// per distinct key.
type CartLine struct {
	OwnerID             string           `db:"owner_id" json:"owner_id"`
	FoodID              int64            `db:"food_id" json:"food_id"`
	Selection           VariantSelection `json:"selection"`
	Quantity            int              `db:"quantity" json:"quantity"`
	SpecialInstructions string           `db:"special_instructions" json:"special_instructions,omitempty"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// CartEntry is a cart line joined with its base item detail for display.
type CartEntry struct {
	Line CartLine `json:"line"`
	Food Food     `json:"food"`
}

// Order is a placed order snapshotted from a cart at checkout.
type Order struct {
	OrderID    string    `db:"order_id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	TotalPrice int64     `db:"total_price" json:"total_price"`
	OrderedAt  time.Time `db:"ordered_at" json:"ordered_at"`
}

// OrderItem is one line of a placed order, frozen at checkout prices.
type OrderItem struct {
	OrderID             string           `db:"order_id" json:"order_id"`
	FoodID              int64            `db:"food_id" json:"food_id"`
	Selection           VariantSelection `json:"selection"`
	Quantity            int              `db:"quantity" json:"quantity"`
	SpecialInstructions string           `db:"special_instructions" json:"special_instructions,omitempty"`
	UnitPrice           int64            `db:"unit_price" json:"unit_price"`
	TotalPrice          int64            `db:"total_price" json:"total_price"`
}

// Activity event types emitted to the analytics pipeline.
const (
	EventSignupStarted     = "signup_started"
	EventSignupVerified    = "signup_verified"
	EventSignupExhausted   = "signup_attempts_exhausted"
	EventCartLineAdded     = "cart_line_added"
	EventCartCleared       = "cart_cleared"
	EventOrderPlaced       = "order_placed"
)

// ActivityEvent is the analytics record produced to Kafka and batched into
// ClickHouse.
type ActivityEvent struct {
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id,omitempty"`
	EntityID   int64     `json:"entity_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	DateBucket string    `json:"date_bucket"`
	CreatedAt  time.Time `json:"created_at"`
}
