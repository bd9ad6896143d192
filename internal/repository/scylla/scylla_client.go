package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"order-service/internal/config"
	"order-service/internal/util"
)

// Statement catalog. Repositories bind these per call; query objects are not
// shared across goroutines.
const (
	stmtCreateUser = `
        INSERT INTO users (
            user_bucket, user_id, email, phone_number, password_hash,
            referral_code, is_admin, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmtClaimEmail = `
        INSERT INTO email_to_user (email, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`

	stmtClaimPhone = `
        INSERT INTO phone_to_user (phone_number, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`

	stmtReleaseEmail = `DELETE FROM email_to_user WHERE email = ?`

	stmtGetUserByID = `
        SELECT user_bucket, user_id, email, phone_number, password_hash,
               referral_code, is_admin, created_at
        FROM users WHERE user_bucket = ? AND user_id = ?`

	stmtLookupEmail = `SELECT user_bucket, user_id FROM email_to_user WHERE email = ?`
	stmtLookupPhone = `SELECT user_bucket, user_id FROM phone_to_user WHERE phone_number = ?`

	stmtCreateFood = `
        INSERT INTO foods (food_id, name, description, price, image_url,
                           category, available_quantity, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`

	stmtGetFood   = `
        SELECT food_id, name, description, price, image_url, category,
               available_quantity, created_at
        FROM foods WHERE food_id = ?`
	stmtListFoods = `
        SELECT food_id, name, description, price, image_url, category,
               available_quantity, created_at
        FROM foods`

	stmtFindCartLine = `
        SELECT quantity, special_instructions, updated_at
        FROM cart_lines
        WHERE owner_id = ? AND food_id = ? AND side_protein_id = ? AND extra_side_id = ?`

	stmtInsertCartLine = `
        INSERT INTO cart_lines (owner_id, food_id, side_protein_id, extra_side_id,
                                quantity, special_instructions, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`

	stmtMergeCartLine = `
        UPDATE cart_lines
        SET quantity = ?, special_instructions = ?, updated_at = ?
        WHERE owner_id = ? AND food_id = ? AND side_protein_id = ? AND extra_side_id = ?
        IF quantity = ?`

	stmtListCartLines = `
        SELECT food_id, side_protein_id, extra_side_id, quantity,
               special_instructions, updated_at
        FROM cart_lines WHERE owner_id = ?`

	stmtClearCart = `DELETE FROM cart_lines WHERE owner_id = ?`

	stmtCreateOrder = `
        INSERT INTO orders (user_id, order_id, total_price, ordered_at)
        VALUES (?, ?, ?, ?)`

	stmtCreateOrderItem = `
        INSERT INTO order_items (order_id, food_id, side_protein_id, extra_side_id,
                                 quantity, special_instructions, unit_price, total_price)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmtListOrders = `
        SELECT user_id, order_id, total_price, ordered_at
        FROM orders WHERE user_id = ?`

	stmtListOrderItems = `
        SELECT order_id, food_id, side_protein_id, extra_side_id, quantity,
               special_instructions, unit_price, total_price
        FROM order_items WHERE order_id = ?`
)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

func (s *ScyllaClient) HealthCheck() error {
	if s.Session == nil || s.Session.Closed() {
		return fmt.Errorf("scylla session is closed")
	}
	return s.Session.Query("SELECT now() FROM system.local").Exec()
}

func (s *ScyllaClient) Close() {
	if s.Session != nil && !s.Session.Closed() {
		s.Session.Close()
	}
}
