package gbp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kev-hfmn/review-reply-app-sub003/config"
	"github.com/kev-hfmn/review-reply-app-sub003/models"
	"github.com/kev-hfmn/review-reply-app-sub003/utils"
	"gorm.io/gorm"
)

// Access tokens are treated as expired slightly early so a token never dies mid-request.
const expiryLeeway = 2 * time.Minute

// CredentialStore persists tenant OAuth tokens sealed at rest and hands out live access
// tokens, refreshing through the token endpoint when the stored one has expired.
type CredentialStore struct {
	db   *gorm.DB
	http *http.Client
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{
		db:   db,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// conn resolves the handle per call: the injected one for tests, the global otherwise.
// The global is connected after the HTTP listener is up.
func (s *CredentialStore) conn(ctx context.Context) *gorm.DB {
	db := s.db
	if db == nil {
		db = config.GetDB()
	}
	return db.WithContext(ctx)
}

// AccessToken implements TokenProvider. On invalid_grant the tenant is downgraded to
// needs_reconnection and utils.ErrorReauthRequired is returned so callers can surface
// requiresReauth instead of retrying.
func (s *CredentialStore) AccessToken(ctx context.Context, businessId string) (string, error) {
	cred, err := s.get(ctx, businessId)
	if err != nil {
		return "", err
	}

	if cred.AccessTokenEnc != "" && cred.TokenExpiry != nil &&
		time.Now().Add(expiryLeeway).Before(*cred.TokenExpiry) {
		return utils.OpenSecret(cred.AccessTokenEnc)
	}

	refreshToken, err := utils.OpenSecret(cred.RefreshTokenEnc)
	if err != nil {
		return "", err
	}

	refreshed, err := refreshAccessToken(ctx, s.http, refreshToken)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			if dErr := models.SetConnectionStatus(ctx, businessId, models.ConnectionStatusNeedsReconnection); dErr != nil {
				config.LogError(config.GetLogger(), "gbp", "AccessToken", "downgrade connection status", businessId, dErr)
			}
			return "", utils.ErrorReauthRequired
		}
		return "", err
	}

	if err := s.persistRefreshed(ctx, businessId, refreshed); err != nil {
		config.LogError(config.GetLogger(), "gbp", "AccessToken", "persist refreshed token", businessId, err)
	}
	return refreshed.AccessToken, nil
}

// HasCredentials reports whether a tenant has a stored refresh token. Used by the batch
// orchestrator to skip tenants instead of burning a run on a guaranteed auth failure.
func (s *CredentialStore) HasCredentials(ctx context.Context, businessId string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.GoogleCredential{}).
		Where("business_id = ? AND refresh_token_enc <> ''", businessId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveCredentials seals and upserts a tenant's token pair after an OAuth exchange.
func (s *CredentialStore) SaveCredentials(ctx context.Context, businessId string, accessToken, refreshToken string, expiry time.Time, scope string) error {
	accessEnc := ""
	if accessToken != "" {
		enc, err := utils.SealSecret(accessToken)
		if err != nil {
			return err
		}
		accessEnc = enc
	}
	refreshEnc, err := utils.SealSecret(refreshToken)
	if err != nil {
		return err
	}

	var existing models.GoogleCredential
	err = s.conn(ctx).Where("business_id = ?", businessId).Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		cred := models.GoogleCredential{
			BusinessId:      businessId,
			AccessTokenEnc:  accessEnc,
			RefreshTokenEnc: refreshEnc,
			TokenExpiry:     &expiry,
			Scope:           scope,
		}
		return s.conn(ctx).Create(&cred).Error
	}

	return s.conn(ctx).Model(&models.GoogleCredential{}).
		Where("business_id = ?", businessId).
		Updates(map[string]interface{}{
			"access_token_enc":  accessEnc,
			"refresh_token_enc": refreshEnc,
			"token_expiry":      expiry,
			"scope":             scope,
		}).Error
}

// DeleteCredentials drops a tenant's stored tokens, used on disconnect.
func (s *CredentialStore) DeleteCredentials(ctx context.Context, businessId string) error {
	return s.conn(ctx).
		Where("business_id = ?", businessId).
		Delete(&models.GoogleCredential{}).Error
}

func (s *CredentialStore) get(ctx context.Context, businessId string) (*models.GoogleCredential, error) {
	var cred models.GoogleCredential
	err := s.conn(ctx).Where("business_id = ?", businessId).Take(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorReauthRequired
		}
		return nil, err
	}
	return &cred, nil
}

func (s *CredentialStore) persistRefreshed(ctx context.Context, businessId string, tok *refreshedToken) error {
	accessEnc, err := utils.SealSecret(tok.AccessToken)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"access_token_enc": accessEnc,
		"token_expiry":     tok.Expiry,
	}
	if tok.Scope != "" {
		updates["scope"] = tok.Scope
	}
	return s.conn(ctx).Model(&models.GoogleCredential{}).
		Where("business_id = ?", businessId).
		Updates(updates).Error
}
