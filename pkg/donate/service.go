package donate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Service contains the domain logic over a Store: credit aggregation and the
// read-only leaderboard projection.
type Service struct {
	store  Store
	logger OperationLogger

	// Serializes load-modify-save within this process. Stores that
	// implement Incrementer bypass it entirely; for the rest it bounds
	// the documented lost-update race to multi-process deployments.
	mu sync.Mutex
}

// NewService wires a Service.
func NewService(store Store, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Credit adds a verified amount to the nick's running total and returns the
// new total, rounded to two fractional digits on the stored sum.
func (service *Service) Credit(ctx context.Context, nick Nick, amount Amount) (decimal.Decimal, error) {
	return service.credit(ctx, "", "", nick, amount)
}

// CreditSettlement credits a provider-settled payment, carrying provider and
// event identifiers through to the operation log.
func (service *Service) CreditSettlement(ctx context.Context, provider string, eventID string, nick Nick, amount Amount) (decimal.Decimal, error) {
	return service.credit(ctx, provider, eventID, nick, amount)
}

func (service *Service) credit(ctx context.Context, provider string, eventID string, nick Nick, amount Amount) (decimal.Decimal, error) {
	newTotal, operationError := service.applyCredit(ctx, nick, amount)
	service.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		Provider:  provider,
		Nick:      nick,
		Amount:    amount,
		EventID:   eventID,
		Error:     operationError,
	})
	return newTotal, operationError
}

func (service *Service) applyCredit(ctx context.Context, nick Nick, amount Amount) (decimal.Decimal, error) {
	if incrementer, ok := service.store.(Incrementer); ok {
		return incrementer.Increment(ctx, nick, amount)
	}
	service.mu.Lock()
	defer service.mu.Unlock()
	document, err := service.store.Load(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	newTotal := document.Total(nick).Add(amount.Decimal()).Round(totalPlaces)
	document.Totals[nick.String()] = newTotal
	if err := service.store.Save(ctx, document); err != nil {
		return decimal.Zero, err
	}
	return newTotal, nil
}

// TopN ranks board entries descending by total and returns at most n rows
// (all rows when n <= 0). Ties sort by nick so the order is stable across
// processes. An absent board yields an empty slice, never an error.
func (service *Service) TopN(ctx context.Context, n int) ([]Row, error) {
	document, err := service.store.Load(ctx)
	if err != nil {
		return nil, WrapError(operationTopN, "board", "load", err)
	}
	rows := make([]Row, 0, len(document.Totals))
	for nick, total := range document.Totals {
		rows = append(rows, Row{Nick: nick, Total: total})
	}
	sort.Slice(rows, func(left, right int) bool {
		comparison := rows[left].Total.Cmp(rows[right].Total)
		if comparison != 0 {
			return comparison > 0
		}
		return rows[left].Nick < rows[right].Nick
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

// FindNick looks up a board row by nickname, case-insensitively. The board
// key itself stays case-sensitive; this serves user-facing "already donated"
// checks only.
func (service *Service) FindNick(ctx context.Context, raw string) (Row, bool, error) {
	wanted := NormalizeNick(raw)
	if wanted == "" {
		return Row{}, false, nil
	}
	document, err := service.store.Load(ctx)
	if err != nil {
		return Row{}, false, WrapError(operationTopN, "board", "load", err)
	}
	for nick, total := range document.Totals {
		if strings.EqualFold(nick, wanted) {
			return Row{Nick: nick, Total: total}, true, nil
		}
	}
	return Row{}, false, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
