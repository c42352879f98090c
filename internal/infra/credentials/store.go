package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"grantpay/internal/infra"
	"grantpay/internal/sqlinline"
)

const (
	ProviderLedger = "ledger"
)

// Store persists third-party API credentials in the database so operators can
// rotate them without redeploying.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) LedgerAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderLedger)
}

// Token returns the stored credential for a provider, or an empty string when
// none has been configured.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetLedgerAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("ledger api key is required")
	}
	return s.upsert(ctx, ProviderLedger, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
