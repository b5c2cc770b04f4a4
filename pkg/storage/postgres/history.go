package postgres

import (
	"context"
	"time"
)

// SaveHistoryDocument appends a history document for runID.
func (p *PostgresClient) SaveHistoryDocument(ctx context.Context, runID string, doc []byte) error {
	return p.DB.WithContext(ctx).Create(&HistoryRecord{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Document:  string(doc),
	}).Error
}

// LatestHistoryDocument returns the most recently saved document of runID.
func (p *PostgresClient) LatestHistoryDocument(ctx context.Context, runID string) ([]byte, error) {
	var rec HistoryRecord
	err := p.DB.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at desc, id desc").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return []byte(rec.Document), nil
}
