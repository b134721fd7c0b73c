package bm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// BackupType marks an exported envelope.
	BackupType = "vb-sqlite-backup"

	// BackupVersion is the envelope version written by ExportSnapshot.
	BackupVersion = 1
)

// sqliteMagic is the header every SQLite database file starts with.
var sqliteMagic = []byte("SQLite format 3\x00")

// Envelope wraps an exported database snapshot.
type Envelope struct {
	Type       string    `json:"type"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Encrypted  bool      `json:"encrypted,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`

	// DBBase64 is the payload field used by older exports.
	DBBase64 string `json:"db_base64,omitempty"`
}

// ExportSnapshot serializes the whole store into a versioned envelope.
// When encrypt is set the payload is encrypted with the configured key.
func (s *BMService) ExportSnapshot(ctx context.Context, encrypt bool) ([]byte, error) {
	if encrypt && (s.encryptor == nil || !s.encryptor.IsConfigured()) {
		return nil, fmt.Errorf("encryption requested but no keys are configured")
	}

	s.writeMu.Lock()
	var snap bytes.Buffer
	_, err := s.database.Snapshot(ctx, &snap)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("snapshotting database: %w", err)
	}

	payload := snap.Bytes()
	if encrypt {
		var enc bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(payload), &enc); err != nil {
			return nil, fmt.Errorf("encrypting snapshot: %w", err)
		}
		payload = enc.Bytes()
	}

	data, err := json.Marshal(Envelope{
		Type:       BackupType,
		Version:    BackupVersion,
		ExportedAt: s.clock.Now().UTC(),
		Encrypted:  encrypt,
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	s.logger.Info("snapshot exported", "bytes", len(data), "encrypted", encrypt)
	return data, nil
}

// ImportSnapshot replaces the whole store with the snapshot in data.
// dec is required when the envelope is encrypted and may be nil otherwise.
// Sessions holding a document must reopen it afterwards.
func (s *BMService) ImportSnapshot(ctx context.Context, data []byte, dec DecryptionContext) error {
	raw, err := decodeEnvelope(data, dec)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.database.Replace(ctx, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("replacing database: %w", err)
	}
	if err := s.persist(ctx); err != nil {
		return err
	}

	s.logger.Info("snapshot imported", "bytes", len(raw))
	return nil
}

// Restore loads the snapshot stored in the vault into the database. It is
// used at startup when the working database starts empty. It reports
// whether a snapshot was found.
func (s *BMService) Restore(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var buf bytes.Buffer
	if err := s.vault.Get(SnapshotKey, &buf); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("no snapshot in vault")
			return false, nil
		}
		return false, fmt.Errorf("reading snapshot from vault: %w", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), sqliteMagic) {
		return false, fmt.Errorf("%w: vault snapshot is not a SQLite database", ErrInvalidBackup)
	}
	if err := s.database.Replace(ctx, &buf); err != nil {
		return false, fmt.Errorf("replacing database: %w", err)
	}

	s.status.setPersisted(true)
	s.logger.Info("database restored from vault")
	return true, nil
}

func decodeEnvelope(data []byte, dec DecryptionContext) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if env.Type != BackupType {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidBackup, env.Type)
	}
	if env.Version != BackupVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidBackup, env.Version)
	}

	payload := env.Payload
	if len(payload) == 0 && env.DBBase64 != "" {
		legacy, err := base64.StdEncoding.DecodeString(env.DBBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding db_base64: %v", ErrInvalidBackup, err)
		}
		payload = legacy
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidBackup)
	}

	if env.Encrypted {
		if dec == nil {
			return nil, fmt.Errorf("backup is encrypted: passphrase required")
		}
		var plain bytes.Buffer
		if err := dec.Decrypt(bytes.NewReader(payload), &plain); err != nil {
			return nil, fmt.Errorf("decrypting payload: %w", err)
		}
		payload = plain.Bytes()
	}

	if !bytes.HasPrefix(payload, sqliteMagic) {
		return nil, fmt.Errorf("%w: payload is not a SQLite database", ErrInvalidBackup)
	}
	return payload, nil
}
