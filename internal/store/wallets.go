package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/shopspring/decimal"
)

// HasCredit reports whether the seller already has a credit ledger row for the order.
func HasCredit(ctx context.Context, q database.Querier, orderID, sellerID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM seller_wallet_transactions
		     WHERE order_id = $1 AND seller_id = $2 AND type = $3)`,
		orderID, sellerID, models.WalletTxCredit).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing credit: %w", err)
	}

	return exists, nil
}

func GetWallet(ctx context.Context, q database.Querier, sellerID int64) (*models.SellerWallet, error) {
	return getWallet(ctx, q, sellerID, "")
}

// LockWallet reads the wallet row with FOR UPDATE; q must be a transaction.
func LockWallet(ctx context.Context, q database.Querier, sellerID int64) (*models.SellerWallet, error) {
	return getWallet(ctx, q, sellerID, " FOR UPDATE")
}

func getWallet(ctx context.Context, q database.Querier, sellerID int64, suffix string) (*models.SellerWallet, error) {
	wallet := &models.SellerWallet{}

	query := `
		SELECT seller_id, balance, total_earnings, total_withdrawals, updated_at
		FROM seller_wallets
		WHERE seller_id = $1` + suffix

	err := q.QueryRowContext(ctx, query, sellerID).Scan(
		&wallet.SellerID,
		&wallet.Balance,
		&wallet.TotalEarnings,
		&wallet.TotalWithdrawals,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	return wallet, nil
}

// AdjustWallet adds delta to the balance and to total earnings and returns
// the new balance. A negative delta reverses an earlier credit.
func AdjustWallet(ctx context.Context, q database.Querier, sellerID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx,
		`UPDATE seller_wallets
		 SET balance = balance + $1,
		     total_earnings = total_earnings + $1,
		     updated_at = NOW()
		 WHERE seller_id = $2
		 RETURNING balance`,
		delta, sellerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, database.ErrWalletNotFound
		}
		return decimal.Zero, fmt.Errorf("update wallet balance: %w", err)
	}

	return balance, nil
}

// InsertWalletTransaction appends a ledger row and fills in its id and creation time.
func InsertWalletTransaction(ctx context.Context, q database.Querier, tx *models.WalletTransaction) error {
	if tx.Status == "" {
		tx.Status = models.WalletTxCompleted
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO seller_wallet_transactions
		     (seller_id, order_id, type, amount, balance_after, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		tx.SellerID, tx.OrderID, tx.Type, tx.Amount, tx.BalanceAfter, tx.Description, tx.Status,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}

	return nil
}

// LedgerTotals sums the credits and debits posted for the seller on an order.
func LedgerTotals(ctx context.Context, q database.Querier, orderID, sellerID int64) (credited, debited decimal.Decimal, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount) FILTER (WHERE type = $3), 0),
		        COALESCE(SUM(amount) FILTER (WHERE type = $4), 0)
		 FROM seller_wallet_transactions
		 WHERE order_id = $1 AND seller_id = $2`,
		orderID, sellerID, models.WalletTxCredit, models.WalletTxDebit).Scan(&credited, &debited)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum ledger totals: %w", err)
	}

	return credited, debited, nil
}

// CreditedSellers returns sellers holding a credit row for the order.
func CreditedSellers(ctx context.Context, q database.Querier, orderID int64) ([]int64, error) {
	return queryIDs(ctx, q, "list credited sellers",
		`SELECT seller_id
		 FROM seller_wallet_transactions
		 WHERE order_id = $1 AND type = $2
		 ORDER BY seller_id`,
		orderID, models.WalletTxCredit)
}

func ListWalletTransactions(ctx context.Context, q database.Querier, sellerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	limit = clampLimit(limit)

	query := `
		SELECT id, seller_id, order_id, type, amount, balance_after, description, status, created_at
		FROM seller_wallet_transactions
		WHERE seller_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, sellerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	txs := []models.WalletTransaction{}
	for rows.Next() {
		var tx models.WalletTransaction
		var orderID sql.NullInt64
		err := rows.Scan(
			&tx.ID,
			&tx.SellerID,
			&orderID,
			&tx.Type,
			&tx.Amount,
			&tx.BalanceAfter,
			&tx.Description,
			&tx.Status,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		tx.OrderID = nullInt64Ptr(orderID)
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(txs) > limit
	if hasMore {
		txs = txs[:limit]
	}

	var nextCursor string
	if hasMore && len(txs) > 0 {
		last := txs[len(txs)-1]
		nextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      txs,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
