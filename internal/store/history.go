package store

import (
	"errors"

	"gorm.io/gorm"

	"harborsync/internal/model"
)

func (s *Store) SaveTransfer(rec model.TransferRecord) error {
	return s.db.Create(&Transfer{
		Filename:    rec.Filename,
		Size:        rec.Size,
		TargetPath:  rec.TargetPath,
		Status:      rec.Status,
		ErrMsg:      rec.ErrorMsg,
		CompletedAt: rec.CompletedAt,
	}).Error
}

func (s *Store) RecentTransfers(n int) ([]model.TransferRecord, error) {
	var rows []Transfer
	if err := s.db.Order("completed_at DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]model.TransferRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, model.TransferRecord{
			Filename:    row.Filename,
			Size:        row.Size,
			TargetPath:  row.TargetPath,
			Status:      row.Status,
			ErrorMsg:    row.ErrMsg,
			CompletedAt: row.CompletedAt,
		})
	}
	return records, nil
}

// Credential accessors back the single-admin auth flow.

func (s *Store) GetCredential() (*Credential, error) {
	var cred Credential
	err := s.db.First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Store) SaveCredential(username, passwordHash string) error {
	existing, err := s.GetCredential()
	if err != nil {
		return err
	}
	if existing == nil {
		return s.db.Create(&Credential{Username: username, PasswordHash: passwordHash}).Error
	}
	existing.Username = username
	existing.PasswordHash = passwordHash
	return s.db.Save(existing).Error
}
