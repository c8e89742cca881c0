package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Service stores and retrieves credential payloads for connections
type Service struct {
	cipher *Cipher
	repo   repositories.CredentialRepo
	logger ectologger.Logger
}

// NewService creates a new credential vault service
func NewService(cipher *Cipher, repo repositories.CredentialRepo, logger ectologger.Logger) *Service {
	return &Service{
		cipher: cipher,
		repo:   repo,
		logger: logger,
	}
}

// Upsert encrypts and stores the payload for a connection, replacing any
// previous payload and bumping the version.
func (s *Service) Upsert(ctx context.Context, connectionID uuid.UUID, payload models.CredentialPayload) (*models.Credential, error) {
	ctx, span := tracing.StartSpan(ctx, "VaultService.Upsert")
	defer span.End()

	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize credential payload: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential payload: %w", err)
	}

	credential, err := s.repo.Upsert(ctx, connectionID, encrypted)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id":   connectionID,
		"payload_version": credential.PayloadVersion,
	}).Info("Updated connection credentials")
	return credential, nil
}

// Load decrypts the payload stored for a connection. Connections without a
// stored credential yield an empty payload so callers can attempt
// credential-less portals. Decryption failures are returned as
// ErrDecryptFailed and abort the caller's run.
func (s *Service) Load(ctx context.Context, connectionID uuid.UUID) (models.CredentialPayload, error) {
	ctx, span := tracing.StartSpan(ctx, "VaultService.Load")
	defer span.End()

	var payload models.CredentialPayload

	credential, err := s.repo.FindByConnectionID(ctx, connectionID)
	if err != nil {
		return payload, err
	}
	if credential == nil {
		return payload, nil
	}

	plain, err := s.cipher.Decrypt(credential.EncryptedPayload)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":   connectionID,
			"payload_version": credential.PayloadVersion,
		}).Error("failed to decrypt stored credentials")
		return payload, err
	}

	if err := json.Unmarshal(plain, &payload); err != nil {
		return payload, fmt.Errorf("%w: malformed payload", ErrDecryptFailed)
	}

	return payload, nil
}
